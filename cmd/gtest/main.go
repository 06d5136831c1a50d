// gtest runs .lisp programs through glisp and checks what they print, either
// against expectations written in the source, a golden file, or the output of
// the same program built with a reference configuration.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

type Execution struct {
	Stdout         string        `json:"stdout"`
	Stderr         string        `json:"stderr"`
	ExitCode       int           `json:"exitCode"`
	Duration       time.Duration `json:"duration"`
	TimedOut       bool          `json:"timed_out"`
	UnstableOutput bool          `json:"unstable_output,omitempty"`
}

type TargetResult struct {
	BinaryPath string    `json:"binary_path,omitempty"`
	Compile    Execution `json:"compile"`
	Run        Execution `json:"run"`
}

type FileTestResult struct {
	File      string        `json:"file"`
	Status    string        `json:"status"` // PASS, FAIL, SKIP, ERROR
	Message   string        `json:"message,omitempty"`
	Diff      string        `json:"diff,omitempty"`
	Reference *TargetResult `json:"reference,omitempty"`
	Target    *TargetResult `json:"target,omitempty"`
}

type TestSuiteResults map[string]*FileTestResult

var (
	compiler       = flag.String("compiler", "./glisp", "Path to the glisp binary under test.")
	refArgs        = flag.String("ref-args", "-b qbe", "Compiler arguments for the reference build (space-separated).")
	targetArgs     = flag.String("target-args", "-b asm", "Compiler arguments for the build under test (space-separated).")
	generateGolden = flag.String("generate-golden", "", "Generate a golden .json file for a given source file.")
	testFiles      = flag.String("test-files", "tests/*.lisp", "Glob pattern(s) for files to test (space-separated).")
	skipFiles      = flag.String("skip-files", "", "Files to skip (space-separated).")
	outputJSON     = flag.String("output", ".test_results.json", "Output file for the JSON test report.")
	timeout        = flag.Duration("timeout", 5*time.Second, "Timeout for each command execution.")
	jobs           = flag.Int("j", 4, "Number of parallel test jobs.")
	runs           = flag.Int("runs", 3, "Number of times to run each binary to find the minimum duration.")
	verbose        = flag.Bool("v", false, "Enable verbose logging.")
	useCache       = flag.Bool("cached", false, "Prefer golden files over a reference build.")
	simulate       = flag.Bool("sim", false, "Run programs in glisp's simulator (-r) instead of linking them.")
	jsonDir        = flag.String("dir", "", "Directory to store/read golden JSON files (defaults to source file dir).")
	ignoreLines    = flag.String("ignore-lines", "", "Comma-separated substrings to ignore during output comparison.")
)

const (
	cRed     = "\x1b[91m"
	cYellow  = "\x1b[93m"
	cGreen   = "\x1b[92m"
	cCyan    = "\x1b[96m"
	cMagenta = "\x1b[95m"
	cBold    = "\x1b[1m"
	cNone    = "\x1b[0m"
)

func main() {
	flag.Parse()
	log.SetFlags(0)

	if *runs < 1 {
		*runs = 1
	}

	tempDir, err := os.MkdirTemp("", "gtest-*")
	if err != nil {
		log.Fatalf("%s[ERROR]%s Failed to create temp directory: %v\n", cRed, cNone, err)
	}
	defer os.RemoveAll(tempDir)
	setupInterruptHandler(tempDir)

	if *generateGolden != "" {
		handleGenerateGolden(*generateGolden, tempDir)
		return
	}

	if failed := handleRunTestSuite(tempDir); failed {
		os.RemoveAll(tempDir)
		os.Exit(1)
	}
}

// setupInterruptHandler cleans up on Ctrl+C.
func setupInterruptHandler(tempDir string) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	go func() {
		<-c
		os.RemoveAll(tempDir)
		fmt.Printf("\n%s[INTERRUPT]%s Test run cancelled. Cleaning up...\n", cYellow, cNone)
		os.Exit(1)
	}()
}

func getJSONPath(sourceFile string) string {
	jsonFileName := "." + filepath.Base(sourceFile) + ".json"
	if *jsonDir != "" {
		return filepath.Join(*jsonDir, jsonFileName)
	}
	return filepath.Join(filepath.Dir(sourceFile), jsonFileName)
}

// hashFile computes the xxhash of a file's content.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum64()), nil
}

func handleGenerateGolden(sourceFile, tempDir string) {
	log.Printf("Generating golden file for %s...\n", sourceFile)

	fileHash, err := hashFile(sourceFile)
	if err != nil {
		log.Fatalf("%s[ERROR]%s Could not hash source file %s: %v\n", cRed, cNone, sourceFile, err)
	}

	targetResult, err := compileAndRun(strings.Fields(*targetArgs), sourceFile, tempDir, fileHash)
	if err != nil {
		log.Fatalf("%s[ERROR]%s Could not generate golden file for %s: %v\n", cRed, cNone, sourceFile, err)
	}

	jsonData, err := json.MarshalIndent(targetResult, "", "  ")
	if err != nil {
		log.Fatalf("%s[ERROR]%s Failed to marshal golden data to JSON: %v\n", cRed, cNone, err)
	}

	goldenFileName := getJSONPath(sourceFile)
	if *jsonDir != "" {
		if err := os.MkdirAll(*jsonDir, 0755); err != nil {
			log.Fatalf("%s[ERROR]%s Failed to create directory %s: %v\n", cRed, cNone, *jsonDir, err)
		}
	}
	if err := os.WriteFile(goldenFileName, jsonData, 0644); err != nil {
		log.Fatalf("%s[ERROR]%s Failed to write golden file %s: %v\n", cRed, cNone, goldenFileName, err)
	}

	log.Printf("%s[SUCCESS]%s Golden file created at %s\n", cGreen, cNone, goldenFileName)
}

// handleRunTestSuite tests every matching file and reports whether anything
// failed.
func handleRunTestSuite(tempDir string) bool {
	files, err := expandGlobPatterns(*testFiles)
	if err != nil {
		log.Fatalf("%s[ERROR]%s Invalid glob pattern(s): %v\n", cRed, cNone, err)
	}
	if len(files) == 0 {
		log.Println("No test files found matching the pattern(s).")
		return false
	}

	skipList := make(map[string]bool)
	for _, f := range strings.Fields(*skipFiles) {
		if abs, err := filepath.Abs(f); err == nil {
			skipList[abs] = true
		}
	}

	tasks := make(chan task, len(files))
	resultsChan := make(chan *FileTestResult, len(files))
	var wg sync.WaitGroup

	for i := 0; i < max(*jobs, 1); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range tasks {
				resultsChan <- testFile(t.file, tempDir, t.hash)
			}
		}()
	}

	// Files with identical content are tested once.
	seenHashes := make(map[string]string)
	for _, file := range files {
		if skipList[file] {
			resultsChan <- &FileTestResult{File: file, Status: "SKIP", Message: "Explicitly skipped"}
			continue
		}
		fileHash, err := hashFile(file)
		if err != nil {
			resultsChan <- &FileTestResult{File: file, Status: "ERROR", Message: fmt.Sprintf("Failed to read file for hashing: %v", err)}
			continue
		}
		if originalFile, seen := seenHashes[fileHash]; seen {
			resultsChan <- &FileTestResult{File: file, Status: "SKIP", Message: fmt.Sprintf("Content is identical to %s", originalFile)}
			continue
		}
		seenHashes[fileHash] = file
		tasks <- task{file: file, hash: fileHash}
	}
	close(tasks)

	wg.Wait()
	close(resultsChan)

	var allResults []*FileTestResult
	for result := range resultsChan {
		allResults = append(allResults, result)
	}
	sort.Slice(allResults, func(i, j int) bool {
		return allResults[i].File < allResults[j].File
	})

	printSummary(allResults)
	return hasFailures(writeJSONReport(allResults))
}

type task struct {
	file string
	hash string
}

// testFile picks the strongest oracle available: expectations in the source,
// then a golden file, then a reference build.
func testFile(file, tempDir, fileHash string) *FileTestResult {
	source, err := os.ReadFile(file)
	if err != nil {
		return &FileTestResult{File: file, Status: "ERROR", Message: fmt.Sprintf("Could not read %s: %v", file, err)}
	}
	if exp := parseExpectations(string(source)); exp.present() {
		return testWithExpectations(file, tempDir, fileHash, exp)
	}

	goldenFile := getJSONPath(file)
	if _, err := os.Stat(goldenFile); err == nil && (*useCache || *refArgs == "") {
		return testWithGoldenFile(file, goldenFile, tempDir, fileHash)
	}
	// The simulator only evaluates the asm lowering, so there is no second
	// build to compare against.
	if *refArgs != "" && !*simulate {
		return testWithReference(file, tempDir, fileHash)
	}
	return &FileTestResult{File: file, Status: "SKIP", Message: "No expectations, golden file or reference build"}
}

func testWithExpectations(file, tempDir, fileHash string, exp expectations) *FileTestResult {
	targetResult, err := compileAndRun(strings.Fields(*targetArgs), file, tempDir, fileHash)
	if exp.compileError != "" {
		if err == nil {
			return &FileTestResult{File: file, Status: "FAIL", Message: fmt.Sprintf("Expected a compile error containing %q", exp.compileError), Target: targetResult}
		}
		if !strings.Contains(targetResult.Compile.Stderr, exp.compileError) {
			return &FileTestResult{
				File:    file,
				Status:  "FAIL",
				Message: "Compile error does not match",
				Diff:    fmt.Sprintf("want substring %q in:\n%s", exp.compileError, targetResult.Compile.Stderr),
				Target:  targetResult,
			}
		}
		return &FileTestResult{File: file, Status: "PASS", Message: "Compile error matched", Target: targetResult}
	}
	if err != nil {
		return &FileTestResult{
			File:    file,
			Status:  "FAIL",
			Message: "Compiler failed, but the file expects output",
			Diff:    fmt.Sprintf("Compiler STDERR:\n%s", targetResult.Compile.Stderr),
			Target:  targetResult,
		}
	}

	want := &TargetResult{Run: Execution{Stdout: exp.stdout(), ExitCode: exp.exitCode}}
	return compareRuntimeResults(file, want, targetResult)
}

func testWithGoldenFile(file, goldenFile, tempDir, fileHash string) *FileTestResult {
	goldenData, err := os.ReadFile(goldenFile)
	if err != nil {
		return &FileTestResult{File: file, Status: "ERROR", Message: fmt.Sprintf("Could not read golden file %s: %v", goldenFile, err)}
	}
	var goldenResult TargetResult
	if err := json.Unmarshal(goldenData, &goldenResult); err != nil {
		return &FileTestResult{File: file, Status: "ERROR", Message: fmt.Sprintf("Could not parse golden file %s: %v", goldenFile, err)}
	}

	targetResult, err := compileAndRun(strings.Fields(*targetArgs), file, tempDir, fileHash)
	if err != nil {
		return &FileTestResult{
			File:      file,
			Status:    "FAIL",
			Message:   "Compiler failed, but golden file expected success.",
			Diff:      fmt.Sprintf("Compiler STDERR:\n%s", targetResult.Compile.Stderr),
			Reference: &goldenResult,
			Target:    targetResult,
		}
	}
	return compareRuntimeResults(file, &goldenResult, targetResult)
}

// testWithReference builds the file twice, with the reference and the target
// arguments, and compares the two programs.
func testWithReference(file, tempDir, fileHash string) *FileTestResult {
	var refResult, targetResult *TargetResult
	var refErr, targetErr error
	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		refResult, refErr = compileAndRun(strings.Fields(*refArgs), file, tempDir, "ref-"+fileHash)
	}()
	go func() {
		defer wg.Done()
		targetResult, targetErr = compileAndRun(strings.Fields(*targetArgs), file, tempDir, "target-"+fileHash)
	}()
	wg.Wait()

	switch {
	case refErr != nil && targetErr != nil:
		return &FileTestResult{File: file, Status: "PASS", Message: "Both builds failed to compile as expected", Reference: refResult, Target: targetResult}
	case targetErr != nil:
		return &FileTestResult{
			File:      file,
			Status:    "FAIL",
			Message:   "Target build failed, but reference build succeeded",
			Diff:      fmt.Sprintf("Target STDERR:\n%s", targetResult.Compile.Stderr),
			Reference: refResult,
			Target:    targetResult,
		}
	case refErr != nil:
		return &FileTestResult{
			File:      file,
			Status:    "FAIL",
			Message:   "Target build succeeded, but reference build failed",
			Diff:      fmt.Sprintf("Reference STDERR:\n%s", refResult.Compile.Stderr),
			Reference: refResult,
			Target:    targetResult,
		}
	}
	return compareRuntimeResults(file, refResult, targetResult)
}

func expandGlobPatterns(patterns string) ([]string, error) {
	var allFiles []string
	seen := make(map[string]bool)
	for _, pattern := range strings.Fields(patterns) {
		files, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %s: %w", pattern, err)
		}
		for _, file := range files {
			absFile, err := filepath.Abs(file)
			if err != nil {
				continue
			}
			if !seen[absFile] {
				if info, err := os.Stat(absFile); err == nil && info.Mode().IsRegular() {
					allFiles = append(allFiles, absFile)
					seen[absFile] = true
				}
			}
		}
	}
	sort.Strings(allFiles)
	return allFiles, nil
}

package main

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"os"
	"strings"
	"time"

	"github.com/google/go-cmp/cmp"
)

func filterOutput(output string, ignoredSubstrings []string) string {
	if len(ignoredSubstrings) == 0 {
		return output
	}
	var keep []string
	for _, line := range strings.Split(output, "\n") {
		ignored := false
		for _, sub := range ignoredSubstrings {
			if sub != "" && strings.Contains(line, sub) {
				ignored = true
				break
			}
		}
		if !ignored {
			keep = append(keep, line)
		}
	}
	return strings.Join(keep, "\n")
}

func ignoredSubstrings() []string {
	if *ignoreLines == "" {
		return nil
	}
	return strings.Split(*ignoreLines, ",")
}

func compareRuntimeResults(file string, refResult, targetResult *TargetResult) *FileTestResult {
	result := &FileTestResult{File: file, Reference: refResult, Target: targetResult}

	if targetResult.Run.TimedOut {
		result.Status, result.Message = "FAIL", fmt.Sprintf("Program timed out after %v", *timeout)
		return result
	}

	ignored := ignoredSubstrings()
	refStdout := filterOutput(refResult.Run.Stdout, ignored)
	targetStdout := filterOutput(targetResult.Run.Stdout, ignored)

	var diffs []string
	if d := cmp.Diff(refStdout, targetStdout); d != "" {
		diffs = append(diffs, formatDiff("Stdout", d))
	}
	if refResult.Run.ExitCode != targetResult.Run.ExitCode {
		diffs = append(diffs, fmt.Sprintf("Exit Code: expected %d, got %d", refResult.Run.ExitCode, targetResult.Run.ExitCode))
	}
	if targetResult.Run.UnstableOutput {
		diffs = append(diffs, "Output changed between runs")
	}

	if len(diffs) > 0 {
		result.Status, result.Message = "FAIL", "Runtime output mismatch"
		result.Diff = strings.Join(diffs, "\n")
		return result
	}

	result.Status, result.Message = "PASS", "Output matches"
	return result
}

func formatDiff(title, diff string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "--- %s (-want, +got) ---\n", title)
	for _, line := range strings.Split(diff, "\n") {
		switch {
		case strings.HasPrefix(line, "-"):
			fmt.Fprintf(&sb, "%s%s%s\n", cRed, line, cNone)
		case strings.HasPrefix(line, "+"):
			fmt.Fprintf(&sb, "%s%s%s\n", cGreen, line, cNone)
		default:
			fmt.Fprintf(&sb, "%s\n", line)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func printSummary(results []*FileTestResult) {
	var passed, failed, skipped, errored int
	var faster, slower int
	var speedup []float64

	fmt.Println()
	for _, res := range results {
		switch res.Status {
		case "PASS":
			passed++
			fmt.Printf("%s[PASS]%s %s", cGreen, cNone, res.File)
			if ratio, ok := durationRatio(res); ok {
				speedup = append(speedup, ratio)
				if ratio > 1 {
					faster++
				} else if ratio < 1 {
					slower++
				}
				fmt.Printf(" %s(%.2fx)%s", cCyan, ratio, cNone)
			}
			fmt.Println()
		case "FAIL":
			failed++
			fmt.Printf("%s[FAIL]%s %s - %s\n", cRed, cNone, res.File, res.Message)
			if res.Diff != "" {
				fmt.Println(indent(res.Diff, "    "))
			}
		case "SKIP":
			skipped++
			if *verbose {
				fmt.Printf("%s[SKIP]%s %s - %s\n", cYellow, cNone, res.File, res.Message)
			}
		case "ERROR":
			errored++
			fmt.Printf("%s[ERROR]%s %s - %s\n", cMagenta, cNone, res.File, res.Message)
		}
	}

	fmt.Printf("\n%s----- Summary -----%s\n", cBold, cNone)
	fmt.Printf("%d passed, %d failed, %d skipped, %d errors (%d total)\n", passed, failed, skipped, errored, len(results))
	if len(speedup) > 0 {
		fmt.Printf("target faster in %d, slower in %d, geometric mean %.2fx\n", faster, slower, geomean(speedup))
	}
}

// durationRatio compares reference and target run times, when both exist.
func durationRatio(res *FileTestResult) (float64, bool) {
	if res.Reference == nil || res.Target == nil {
		return 0, false
	}
	ref, target := res.Reference.Run.Duration, res.Target.Run.Duration
	if ref <= 0 || target <= 0 {
		return 0, false
	}
	return float64(ref) / float64(target), true
}

func geomean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	logSum := 0.0
	for _, x := range xs {
		logSum += math.Log(x)
	}
	return math.Exp(logSum / float64(len(xs)))
}

func indent(s, prefix string) string {
	return prefix + strings.ReplaceAll(s, "\n", "\n"+prefix)
}

// writeJSONReport records the run and returns the results it wrote.
func writeJSONReport(results []*FileTestResult) []*FileTestResult {
	report := struct {
		Timestamp time.Time         `json:"timestamp"`
		Compiler  string            `json:"compiler"`
		Results   []*FileTestResult `json:"results"`
	}{time.Now(), *compiler, results}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		log.Printf("%s[ERROR]%s Failed to marshal report: %v\n", cRed, cNone, err)
		return results
	}
	if err := os.WriteFile(*outputJSON, data, 0644); err != nil {
		log.Printf("%s[ERROR]%s Failed to write report %s: %v\n", cRed, cNone, *outputJSON, err)
		return results
	}
	if *verbose {
		log.Printf("Report written to %s\n", *outputJSON)
	}
	return results
}

func hasFailures(results []*FileTestResult) bool {
	for _, r := range results {
		if r.Status == "FAIL" || r.Status == "ERROR" {
			return true
		}
	}
	return false
}

package main

import (
	"context"
	"path/filepath"

	"github.com/xplshn/glisp/pkg/util"
	"github.com/xplshn/glisp/pkg/watch"
)

// watch rebuilds an input each time it changes, until ctx is done.
func (d *driver) watch(ctx context.Context, inputs []string) error {
	byPath := make(map[string]string, len(inputs))
	for _, input := range inputs {
		abs, err := filepath.Abs(input)
		if err != nil {
			return err
		}
		byPath[abs] = input
	}

	w, err := watch.New(func(path string) {
		input, ok := byPath[path]
		if !ok {
			return
		}
		util.Info("%s changed, rebuilding", input)
		if err := d.build(input, len(inputs)); err != nil {
			util.Report(err)
		}
	})
	if err != nil {
		return err
	}
	defer w.Close()

	for _, input := range inputs {
		if err := w.Add(input); err != nil {
			return err
		}
	}
	util.Info("watching %d file(s), press Ctrl+C to stop", len(inputs))
	return w.Run(ctx)
}

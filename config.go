package pointsto

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// fileOptions mirrors the YAML configuration file:
//
//	lazyEvaluation: true
//	analysisType: unification
//	heapAllocFunctions: [malloc, calloc]
//	warnPointerThreshold: 100
type fileOptions struct {
	LazyEvaluation       bool     `yaml:"lazyEvaluation"`
	AnalysisType         string   `yaml:"analysisType"`
	HeapAllocFunctions   []string `yaml:"heapAllocFunctions"`
	WarnPointerThreshold int      `yaml:"warnPointerThreshold"`
}

// LoadOptions decodes an Options from the YAML file at absPath.
func LoadOptions(absPath string) (Options, error) {
	var opts Options

	raw, err := os.ReadFile(absPath)
	if err != nil {
		return opts, fmt.Errorf("reading config %s: %w", absPath, err)
	}

	var file fileOptions
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return opts, fmt.Errorf("decoding config %s: %w", absPath, err)
	}

	kind, err := ParseAnalysisKind(file.AnalysisType)
	if err != nil {
		return opts, fmt.Errorf("config %s: %w", absPath, err)
	}

	opts.UseLazyEvaluation = file.LazyEvaluation
	opts.AnalysisKind = kind
	opts.HeapAllocatingFunctions = file.HeapAllocFunctions
	opts.WarnPointerThreshold = file.WarnPointerThreshold
	return opts, nil
}

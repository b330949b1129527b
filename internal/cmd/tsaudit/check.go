package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/charmbracelet/codectx/internal/treesitter"
)

const (
	defaultManifestRelPath = "internal/treesitter/languages.json"
	defaultQueriesRelPath  = "internal/treesitter/queries"
	querySuffix            = "-tags.scm"
)

var errDriftDetected = errors.New("drift detected")

type checkOptions struct {
	repoRoot     string
	manifestPath string
	queriesDir   string
	expectedFile string
}

type driftReport struct {
	MissingInManifest    []string
	UnexpectedInManifest []string
	MissingQueryFiles    []string
	UnexpectedQueryFiles []string
	MissingGrammars      []string
	ExtensionMismatches  []string
}

func (r driftReport) HasDrift() bool {
	return len(r.MissingInManifest) > 0 ||
		len(r.UnexpectedInManifest) > 0 ||
		len(r.MissingQueryFiles) > 0 ||
		len(r.UnexpectedQueryFiles) > 0 ||
		len(r.MissingGrammars) > 0 ||
		len(r.ExtensionMismatches) > 0
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check manifest/query drift",
	Long:  "Check drift between internal/treesitter/languages.json, the vendored tags queries, and the grammars compiled into the binary.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		report, err := runCheck(loadCheckOptions(cmd))
		if err != nil {
			return err
		}

		if !report.HasDrift() {
			cmd.Println("tsaudit check: no drift detected")
			return nil
		}

		printDrift(cmd, report)
		return errDriftDetected
	},
}

func init() {
	checkCmd.Flags().String("repo-root", ".", "Repository root path")
	checkCmd.Flags().String("manifest", defaultManifestRelPath, "Path to languages.json manifest")
	checkCmd.Flags().String("queries-dir", defaultQueriesRelPath, "Path to vendored query directory")
	checkCmd.Flags().String("expected-file", "", "Path to JSON file listing the language names that must be supported")

	rootCmd.AddCommand(checkCmd)
}

func loadCheckOptions(cmd *cobra.Command) checkOptions {
	repoRoot, _ := cmd.Flags().GetString("repo-root")
	manifestPath, _ := cmd.Flags().GetString("manifest")
	queriesDir, _ := cmd.Flags().GetString("queries-dir")
	expectedFile, _ := cmd.Flags().GetString("expected-file")

	return checkOptions{
		repoRoot:     repoRoot,
		manifestPath: manifestPath,
		queriesDir:   queriesDir,
		expectedFile: expectedFile,
	}
}

func runCheck(opts checkOptions) (driftReport, error) {
	manifest, err := loadManifest(resolvePath(opts.repoRoot, opts.manifestPath))
	if err != nil {
		return driftReport{}, err
	}

	queryNames, err := loadVendoredQueryNames(resolvePath(opts.repoRoot, opts.queriesDir))
	if err != nil {
		return driftReport{}, err
	}

	var expected map[string]struct{}
	if strings.TrimSpace(opts.expectedFile) != "" {
		expected, err = loadLanguageSet(resolvePath(opts.repoRoot, opts.expectedFile))
		if err != nil {
			return driftReport{}, fmt.Errorf("load expected list: %w", err)
		}
	}

	report := compareDrift(manifestNames(manifest), manifestQueryNames(manifest), queryNames, expected)
	report.MissingGrammars = missingGrammars(manifest, func(name string) bool {
		return treesitter.GrammarFor(name) != nil
	})
	report.ExtensionMismatches = extensionMismatches(manifest, treesitter.MapExtension)
	return report, nil
}

func loadManifest(path string) (treesitter.Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return treesitter.Manifest{}, fmt.Errorf("read manifest %q: %w", path, err)
	}

	var m treesitter.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return treesitter.Manifest{}, fmt.Errorf("parse manifest %q: %w", path, err)
	}
	return m, nil
}

func resolvePath(root, p string) string {
	if filepath.IsAbs(p) || root == "" {
		return p
	}
	return filepath.Join(root, p)
}

func manifestNames(m treesitter.Manifest) map[string]struct{} {
	names := make([]string, 0, len(m.Languages))
	for _, l := range m.Languages {
		names = append(names, l.Name)
	}
	return sliceToSet(names)
}

// manifestQueryNames returns the query keys the manifest refers to. Several
// grammars may share one query.
func manifestQueryNames(m treesitter.Manifest) map[string]struct{} {
	names := make([]string, 0, len(m.Languages))
	for _, l := range m.Languages {
		names = append(names, l.QueryName())
	}
	return sliceToSet(names)
}

func loadLanguageSet(path string) (map[string]struct{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file %q: %w", path, err)
	}

	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		return sliceToSet(list), nil
	}

	var wrapper struct {
		Languages []string `json:"languages"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, fmt.Errorf("parse language list %q: %w", path, err)
	}
	return sliceToSet(wrapper.Languages), nil
}

func loadVendoredQueryNames(queriesDir string) (map[string]struct{}, error) {
	pattern := filepath.Join(queriesDir, "*"+querySuffix)
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("glob vendored queries %q: %w", pattern, err)
	}

	names := make([]string, 0, len(matches))
	for _, match := range matches {
		names = append(names, strings.TrimSuffix(filepath.Base(match), querySuffix))
	}
	return sliceToSet(names), nil
}

func compareDrift(languages, queryRefs, queryFiles, expected map[string]struct{}) driftReport {
	report := driftReport{}

	if len(expected) > 0 {
		report.MissingInManifest = sortedSetDiff(expected, languages)
		report.UnexpectedInManifest = sortedSetDiff(languages, expected)
	}

	report.MissingQueryFiles = sortedSetDiff(queryRefs, queryFiles)
	report.UnexpectedQueryFiles = sortedSetDiff(queryFiles, queryRefs)

	return report
}

func missingGrammars(m treesitter.Manifest, compiled func(string) bool) []string {
	var out []string
	for _, l := range m.Languages {
		if !compiled(l.Name) {
			out = append(out, l.Name)
		}
	}
	sort.Strings(out)
	return out
}

// extensionMismatches lists manifest extensions that the runtime maps to a
// different grammar, formatted as "ext: manifest=x runtime=y".
func extensionMismatches(m treesitter.Manifest, mapExt func(string) string) []string {
	var out []string
	for _, l := range m.Languages {
		for _, ext := range l.Extensions {
			if got := mapExt(ext); got != l.Name {
				out = append(out, fmt.Sprintf("%s: manifest=%s runtime=%s", ext, l.Name, orNone(got)))
			}
		}
	}
	sort.Strings(out)
	return out
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

func sortedSetDiff(a, b map[string]struct{}) []string {
	if len(a) == 0 {
		return nil
	}
	out := make([]string, 0)
	for name := range a {
		if _, ok := b[name]; !ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func sliceToSet(items []string) map[string]struct{} {
	out := make(map[string]struct{}, len(items))
	for _, item := range items {
		name := strings.TrimSpace(item)
		if name == "" {
			continue
		}
		out[name] = struct{}{}
	}
	return out
}

func printDrift(cmd *cobra.Command, report driftReport) {
	cmd.Println("tsaudit check: drift detected")

	printList := func(header string, values []string) {
		if len(values) == 0 {
			return
		}
		cmd.Printf("\n%s:\n", header)
		for _, value := range values {
			cmd.Printf("  - %s\n", value)
		}
	}

	printList("Missing in manifest (expected languages)", report.MissingInManifest)
	printList("Unexpected in manifest", report.UnexpectedInManifest)
	printList("Missing vendored query files", report.MissingQueryFiles)
	printList("Unexpected vendored query files", report.UnexpectedQueryFiles)
	printList("Languages without a compiled grammar", report.MissingGrammars)
	printList("Extensions mapped to another grammar", report.ExtensionMismatches)
}

// =============================================================================
// ERP to CoreTax Converter - File Manager Utility
// =============================================================================
//
// This module provides file management utilities for the convert command:
//   - Directory management
//   - Input discovery (.xlsx and .csv exports)
//   - Output naming and collision-free output paths
//   - Archival of inputs and outputs after a successful conversion
//   - The processing summary log
//
// ARCHIVAL STRATEGY:
//   - Input files are moved to input_archive after successful conversion
//   - Output workbooks are copied to output_archive
//   - Failed inputs remain in their original location
//
// =============================================================================

package utils

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// OutputExtension is forced onto every generated output name.
const OutputExtension = ".xlsx"

// =============================================================================
// FILE MANAGER
// =============================================================================

// FileManager handles file operations for the converter.
type FileManager struct {
	// InputDir is scanned for input exports.
	InputDir string

	// OutputDir receives generated workbooks.
	OutputDir string

	// InputArchiveDir receives inputs after successful conversion.
	InputArchiveDir string

	// OutputArchiveDir receives copies of generated workbooks.
	OutputArchiveDir string

	// UseTimestampSubdirs creates date-based subdirectories in archives.
	// Example: input_archive/2024/01/15/sales.xlsx
	UseTimestampSubdirs bool

	// ArchiveOnSuccess enables archival. When false the Archive methods
	// return the original path untouched.
	ArchiveOnSuccess bool

	// Now is the clock used for names and archive subdirectories.
	Now func() time.Time

	mu       sync.Mutex
	reserved map[string]bool
}

// NewFileManager creates a new FileManager with the specified directories.
// Archival is disabled until ArchiveOnSuccess is set.
func NewFileManager(inputDir, outputDir, inputArchiveDir, outputArchiveDir string) *FileManager {
	return &FileManager{
		InputDir:         inputDir,
		OutputDir:        outputDir,
		InputArchiveDir:  inputArchiveDir,
		OutputArchiveDir: outputArchiveDir,
		Now:              time.Now,
		reserved:         make(map[string]bool),
	}
}

func (fm *FileManager) now() time.Time {
	if fm.Now == nil {
		return time.Now()
	}
	return fm.Now()
}

// =============================================================================
// DIRECTORY MANAGEMENT
// =============================================================================

// EnsureDirectories creates the output directory, and the archive
// directories when archival is enabled.
func (fm *FileManager) EnsureDirectories() error {
	dirs := []string{fm.OutputDir}
	if fm.ArchiveOnSuccess {
		dirs = append(dirs, fm.InputArchiveDir, fm.OutputArchiveDir)
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// =============================================================================
// FILE DISCOVERY
// =============================================================================

// DiscoverInputFiles lists the regular files in InputDir whose extension
// matches one of extensions (case-insensitive), sorted by name. Hidden files
// and Office lock files ("~$sales.xlsx") are skipped.
func (fm *FileManager) DiscoverInputFiles(extensions ...string) ([]string, error) {
	entries, err := os.ReadDir(fm.InputDir)
	if err != nil {
		return nil, fmt.Errorf("failed to scan input directory: %w", err)
	}

	var result []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~$") {
			continue
		}
		if !hasExtension(name, extensions) {
			continue
		}
		result = append(result, filepath.Join(fm.InputDir, name))
	}

	sort.Strings(result)
	return result, nil
}

func hasExtension(name string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, want := range extensions {
		if ext == strings.ToLower(want) {
			return true
		}
	}
	return false
}

// =============================================================================
// FILE ARCHIVAL
// =============================================================================

// ArchiveInputFile moves an input file to the archive directory and returns
// its new path.
func (fm *FileManager) ArchiveInputFile(filePath string) (string, error) {
	if !fm.ArchiveOnSuccess {
		return filePath, nil
	}

	archivePath := fm.getArchivePath(fm.InputArchiveDir, filePath)
	if err := os.MkdirAll(filepath.Dir(archivePath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create archive directory: %w", err)
	}

	if err := os.Rename(filePath, archivePath); err != nil {
		// Cross-device moves fall back to copy and delete.
		if err := copyFile(filePath, archivePath); err != nil {
			return "", fmt.Errorf("failed to copy file to archive: %w", err)
		}
		if err := os.Remove(filePath); err != nil {
			return "", fmt.Errorf("failed to remove original file: %w", err)
		}
	}

	return archivePath, nil
}

// ArchiveOutputFile copies an output file to the archive directory. The
// original stays in the output directory.
func (fm *FileManager) ArchiveOutputFile(filePath string) (string, error) {
	if !fm.ArchiveOnSuccess {
		return filePath, nil
	}

	archivePath := fm.getArchivePath(fm.OutputArchiveDir, filePath)
	if err := os.MkdirAll(filepath.Dir(archivePath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create archive directory: %w", err)
	}

	if err := copyFile(filePath, archivePath); err != nil {
		return "", fmt.Errorf("failed to copy file to archive: %w", err)
	}

	return archivePath, nil
}

// getArchivePath constructs the archive path for a file. An existing file
// of the same name is never overwritten.
func (fm *FileManager) getArchivePath(archiveDir, filePath string) string {
	dir := archiveDir
	if fm.UseTimestampSubdirs {
		now := fm.now()
		dir = filepath.Join(
			archiveDir,
			fmt.Sprintf("%d", now.Year()),
			fmt.Sprintf("%02d", now.Month()),
			fmt.Sprintf("%02d", now.Day()),
		)
	}
	return uniquePath(filepath.Join(dir, filepath.Base(filePath)), fileExists)
}

// =============================================================================
// OUTPUT FILE NAMING
// =============================================================================

// GenerateOutputFileName expands an output name format.
//
// PARAMETERS:
//   - format: The format string. Placeholders:
//     {uuid}      - A random UUID
//     {timestamp} - Timestamp (YYYYMMDD_HHMMSS)
//     {date}      - Date (YYYYMMDD)
//     {time}      - Time (HHMMSS)
//     plus any key of params, e.g. {original}
//   - params: Extra placeholder values.
//   - now: The time used for the date placeholders.
//
// RETURNS:
//   - The file name, always ending in .xlsx.
//
// EXAMPLE:
//
//	format: "CoreTax_Import_{timestamp}.xlsx"
//	output: "CoreTax_Import_20240115_143022.xlsx"
func GenerateOutputFileName(format string, params map[string]string, now time.Time) string {
	replacements := map[string]string{
		"{timestamp}": now.Format("20060102_150405"),
		"{date}":      now.Format("20060102"),
		"{time}":      now.Format("150405"),
	}
	if strings.Contains(format, "{uuid}") {
		replacements["{uuid}"] = uuid.New().String()
	}
	for key, value := range params {
		replacements["{"+key+"}"] = sanitizeNamePart(value)
	}

	result := format
	for placeholder, value := range replacements {
		result = strings.ReplaceAll(result, placeholder, value)
	}

	if !strings.HasSuffix(strings.ToLower(result), OutputExtension) {
		result += OutputExtension
	}

	return result
}

// OutputPath expands format for sourcePath and reserves a path in OutputDir
// that neither exists on disk nor was handed out earlier by this manager.
// Concurrent jobs finishing in the same second get "_2", "_3", ... suffixes.
func (fm *FileManager) OutputPath(format, sourcePath string) string {
	original := strings.TrimSuffix(filepath.Base(sourcePath), filepath.Ext(sourcePath))
	name := GenerateOutputFileName(format, map[string]string{"original": original}, fm.now())

	fm.mu.Lock()
	defer fm.mu.Unlock()

	if fm.reserved == nil {
		fm.reserved = make(map[string]bool)
	}
	path := uniquePath(filepath.Join(fm.OutputDir, name), func(p string) bool {
		return fm.reserved[p] || fileExists(p)
	})
	fm.reserved[path] = true
	return path
}

// uniquePath returns path, or path with a numeric suffix before the
// extension, such that taken reports false.
func uniquePath(path string, taken func(string) bool) string {
	if !taken(path) {
		return path
	}
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s_%d%s", base, i, ext)
		if !taken(candidate) {
			return candidate
		}
	}
}

// sanitizeNamePart removes path separators from a placeholder value.
func sanitizeNamePart(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, s)
}

// =============================================================================
// PROCESSING SUMMARY
// =============================================================================

// ProcessingSummary contains summary information about a convert run.
type ProcessingSummary struct {
	StartTime          time.Time
	EndTime            time.Time
	TotalFiles         int
	SuccessfulFiles    int
	FailedFiles        int
	TotalRows          int
	RecoveredRows      int
	ValidationWarnings int
	ProcessedFiles     []ProcessedFileInfo
	FailedFilesList    []FailedFileInfo
}

// ProcessedFileInfo describes a successfully converted file.
type ProcessedFileInfo struct {
	InputFile     string
	OutputFile    string
	ArchivePath   string
	Rows          int
	RecoveredRows int
	ProcessTime   time.Duration
}

// FailedFileInfo describes a file that could not be converted.
type FailedFileInfo struct {
	InputFile    string
	ErrorMessage string
}

// WriteSummaryLog writes a processing summary to outputDir and returns its
// path.
func WriteSummaryLog(summary ProcessingSummary, outputDir string) (string, error) {
	timestamp := summary.EndTime.Format("20060102_150405")
	summaryPath := uniquePath(filepath.Join(outputDir, fmt.Sprintf("processing_summary_%s.txt", timestamp)), fileExists)

	file, err := os.Create(summaryPath)
	if err != nil {
		return "", fmt.Errorf("failed to create summary file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	rule := strings.Repeat("=", 80) + "\n"
	thin := strings.Repeat("-", 80) + "\n"

	fmt.Fprintf(writer, "ERP to CoreTax Converter - Processing Summary\n%s\n", rule)
	fmt.Fprintf(writer, "Run Information:\n"+
		"  Start Time:     %s\n"+
		"  End Time:       %s\n"+
		"  Duration:       %s\n\n",
		summary.StartTime.Format("2006-01-02 15:04:05"),
		summary.EndTime.Format("2006-01-02 15:04:05"),
		summary.EndTime.Sub(summary.StartTime).String())
	fmt.Fprintf(writer, "Statistics:\n"+
		"  Total Files:         %d\n"+
		"  Successful:          %d\n"+
		"  Failed:              %d\n"+
		"  Total Rows:          %d\n"+
		"  Recovered Rows:      %d\n"+
		"  Validation Warnings: %d\n\n",
		summary.TotalFiles,
		summary.SuccessfulFiles,
		summary.FailedFiles,
		summary.TotalRows,
		summary.RecoveredRows,
		summary.ValidationWarnings)

	if len(summary.ProcessedFiles) > 0 {
		writer.WriteString("Successful Files:\n" + thin)
		for _, pf := range summary.ProcessedFiles {
			fmt.Fprintf(writer, "  Input:        %s\n", pf.InputFile)
			fmt.Fprintf(writer, "  Output:       %s\n", pf.OutputFile)
			if pf.ArchivePath != "" {
				fmt.Fprintf(writer, "  Archived To:  %s\n", pf.ArchivePath)
			}
			fmt.Fprintf(writer, "  Rows:         %d\n", pf.Rows)
			fmt.Fprintf(writer, "  Recovered:    %d\n", pf.RecoveredRows)
			fmt.Fprintf(writer, "  Process Time: %s\n\n", pf.ProcessTime.String())
		}
	}

	if len(summary.FailedFilesList) > 0 {
		writer.WriteString("Failed Files:\n" + thin)
		for _, ff := range summary.FailedFilesList {
			fmt.Fprintf(writer, "  File:  %s\n", ff.InputFile)
			fmt.Fprintf(writer, "  Error: %s\n\n", ff.ErrorMessage)
		}
	}

	writer.WriteString(rule + "End of Summary\n")

	if err := writer.Flush(); err != nil {
		return "", fmt.Errorf("failed to flush summary file: %w", err)
	}

	return summaryPath, nil
}

// =============================================================================
// UTILITY FUNCTIONS
// =============================================================================

// copyFile copies a file from src to dst.
func copyFile(src, dst string) error {
	sourceFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer sourceFile.Close()

	destFile, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer destFile.Close()

	if _, err := io.Copy(destFile, sourceFile); err != nil {
		return err
	}

	return destFile.Sync()
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

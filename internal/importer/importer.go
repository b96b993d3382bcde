package importer

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/prodexhq/prodex/internal/indexer"
	"github.com/prodexhq/prodex/pkg/types"
)

// ImportResult is the final summary produced by a completed import job.
type ImportResult struct {
	JobID        string        `json:"job_id"`
	TenantID     string        `json:"tenant_id"`
	FilesFound   int           `json:"files_found"`
	PagesCreated int           `json:"pages_created"`
	FilesSkipped int           `json:"files_skipped"`
	FilesFailed  int           `json:"files_failed"`
	Errors       []string      `json:"errors,omitempty"`
	Duration     time.Duration `json:"duration_ms"`
}

// ImportProgress carries live progress data for a running job.
type ImportProgress struct {
	JobID          string `json:"job_id"`
	Status         string `json:"status"` // "running" | "complete" | "failed"
	FilesFound     int    `json:"files_found"`
	FilesProcessed int    `json:"files_processed"`
	CurrentFile    string `json:"current_file,omitempty"`
	Message        string `json:"message,omitempty"`
}

// importJob tracks the state of one asynchronous import.
type importJob struct {
	mu       sync.RWMutex
	progress ImportProgress
	result   *ImportResult
	done     chan struct{}
}

func (j *importJob) snapshot() ImportProgress {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.progress
}

// Importer walks a directory of Markdown documents and writes each as a
// tenant page entity through the on-write hook, which snapshots it and
// queues its embedding.
type Importer struct {
	hook *indexer.Hook

	mu   sync.RWMutex
	jobs map[string]*importJob
}

// New creates an Importer that delivers pages through the given hook.
func New(hook *indexer.Hook) *Importer {
	return &Importer{
		hook: hook,
		jobs: make(map[string]*importJob),
	}
}

// StartImport begins an asynchronous import of dirPath for one tenant and
// returns the job id.
func (imp *Importer) StartImport(ctx context.Context, tenantID, dirPath string) (string, error) {
	if tenantID == "" {
		return "", indexer.ErrInvalidTenant
	}
	info, err := os.Stat(dirPath)
	if err != nil {
		return "", fmt.Errorf("cannot access directory %q: %w", dirPath, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%q is not a directory", dirPath)
	}

	jobID := uuid.New().String()
	job := &importJob{
		progress: ImportProgress{JobID: jobID, Status: "running"},
		done:     make(chan struct{}),
	}

	imp.mu.Lock()
	imp.jobs[jobID] = job
	imp.mu.Unlock()

	go func() {
		result := imp.runImport(ctx, job, tenantID, dirPath)
		job.mu.Lock()
		job.result = result
		if len(result.Errors) > 0 && result.PagesCreated == 0 {
			job.progress.Status = "failed"
			job.progress.Message = "Import failed"
		} else {
			job.progress.Status = "complete"
			job.progress.Message = fmt.Sprintf("Imported %d pages from %d files",
				result.PagesCreated, result.FilesFound)
		}
		job.mu.Unlock()
		close(job.done)
	}()

	return jobID, nil
}

// Progress returns the live progress for a job, or false if unknown.
func (imp *Importer) Progress(jobID string) (ImportProgress, bool) {
	imp.mu.RLock()
	job, ok := imp.jobs[jobID]
	imp.mu.RUnlock()
	if !ok {
		return ImportProgress{}, false
	}
	return job.snapshot(), true
}

// Wait blocks until the job finishes and returns its result. Returns nil
// for an unknown job id.
func (imp *Importer) Wait(jobID string) *ImportResult {
	imp.mu.RLock()
	job, ok := imp.jobs[jobID]
	imp.mu.RUnlock()
	if !ok {
		return nil
	}
	<-job.done
	job.mu.RLock()
	defer job.mu.RUnlock()
	return job.result
}

func (imp *Importer) runImport(ctx context.Context, job *importJob, tenantID, dirPath string) *ImportResult {
	start := time.Now()
	result := &ImportResult{JobID: job.progress.JobID, TenantID: tenantID}

	files, err := collectMarkdownFiles(dirPath)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("walk error: %v", err))
		return result
	}

	result.FilesFound = len(files)
	job.mu.Lock()
	job.progress.FilesFound = len(files)
	job.mu.Unlock()

	for i, absPath := range files {
		if ctx.Err() != nil {
			result.Errors = append(result.Errors, "context cancelled")
			break
		}

		rel, _ := filepath.Rel(dirPath, absPath)

		job.mu.Lock()
		job.progress.FilesProcessed = i
		job.progress.CurrentFile = rel
		job.mu.Unlock()

		data, err := os.ReadFile(absPath)
		if err != nil {
			log.Printf("WARNING: import skipped %s: %v", rel, err)
			result.FilesSkipped++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: read error: %v", rel, err))
			continue
		}
		if len(strings.TrimSpace(string(data))) == 0 {
			result.FilesSkipped++
			continue
		}

		doc, err := ParseMarkdown(data, rel)
		if err != nil {
			log.Printf("WARNING: import skipped %s: %v", rel, err)
			result.FilesFailed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: parse error: %v", rel, err))
			continue
		}

		if err := imp.hook.EntityWritten(ctx, tenantID, docEntity(doc, rel)); err != nil {
			log.Printf("WARNING: import failed to record %s: %v", rel, err)
			result.FilesFailed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: write error: %v", rel, err))
			continue
		}

		result.PagesCreated++
	}

	job.mu.Lock()
	job.progress.FilesProcessed = result.FilesFound
	job.mu.Unlock()

	result.Duration = time.Since(start)
	return result
}

// docEntity converts a parsed document into a page entity. The id is a slug
// of the relative path, so re-importing the same tree updates pages in
// place instead of duplicating them.
func docEntity(doc *ParsedDoc, relativePath string) *types.Entity {
	updated := doc.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	return &types.Entity{
		Type:        types.EntityPage,
		ID:          "page-" + pathSlug(relativePath),
		Name:        doc.Title,
		Description: doc.Body,
		Attributes:  doc.Attributes,
		UpdatedAt:   updated,
	}
}

// pathSlug lowercases a relative path and collapses everything that is not
// a letter or digit into single hyphens.
func pathSlug(rel string) string {
	rel = strings.TrimSuffix(filepath.ToSlash(rel), filepath.Ext(rel))
	var b strings.Builder
	lastHyphen := false
	for _, r := range rel {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
			lastHyphen = false
		case !lastHyphen:
			b.WriteRune('-')
			lastHyphen = true
		}
	}
	return strings.Trim(b.String(), "-")
}

// collectMarkdownFiles walks dirPath and returns all .md / .markdown files,
// skipping hidden directories.
func collectMarkdownFiles(dirPath string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dirPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != dirPath {
				return filepath.SkipDir
			}
			return nil
		}
		ext := strings.ToLower(filepath.Ext(d.Name()))
		if ext == ".md" || ext == ".markdown" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

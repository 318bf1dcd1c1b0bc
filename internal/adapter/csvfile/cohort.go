// Package csvfile reads the active-subject cohort from a CSV file and
// writes day duration reports as CSV.
package csvfile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/V4T54L/activetime/internal/domain"
)

// CohortFile loads the cohort from the first column of a CSV file.
type CohortFile struct {
	path   string
	logger *slog.Logger
}

// NewCohortFile creates a CohortFile reading from path.
func NewCohortFile(path string, logger *slog.Logger) *CohortFile {
	return &CohortFile{path: path, logger: logger.With("component", "cohort_file")}
}

// LoadSubjects implements domain.SubjectRepository.
func (c *CohortFile) LoadSubjects(ctx context.Context) (domain.SubjectSet, error) {
	ids, err := c.ReadIDs()
	if err != nil {
		return nil, err
	}
	c.logger.Debug("loaded cohort", "path", c.path, "subjects", len(ids))
	return domain.NewSubjectSet(ids...), nil
}

// ReadIDs returns the non-blank first cell of every row, in file order.
func (c *CohortFile) ReadIDs() ([]string, error) {
	f, err := os.Open(c.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cohort file %s: %w", c.path, err)
	}
	defer f.Close()

	ids, err := ReadCohort(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read cohort file %s: %w", c.path, err)
	}
	return ids, nil
}

// ReadCohort parses cohort rows from r. Rows may have any number of columns.
func ReadCohort(r io.Reader) ([]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var ids []string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(record) == 0 {
			continue
		}
		id := strings.TrimSpace(strings.TrimPrefix(record[0], "\ufeff"))
		if id == "" {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

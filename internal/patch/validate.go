package patch

import (
	"errors"
	"fmt"

	"github.com/revittco/mutacache/internal/cache"
	"github.com/revittco/mutacache/internal/record"
)

// ErrInconsistent is returned by Validate for values no reader should see.
var ErrInconsistent = errors.New("inconsistent cache value")

// Validate rejects values a faulty patch could produce: negative totals,
// nil records and records without an id. It is installed as the store's
// validator.
func Validate(_ cache.Key, value any) error {
	switch v := value.(type) {
	case record.Record:
		return checkRecord(v)
	case []record.Record:
		return checkRecords(v)
	case record.List:
		return checkList(v)
	case record.Infinite:
		for i, p := range v.Pages {
			if err := checkList(p); err != nil {
				return fmt.Errorf("page %d: %w", i, err)
			}
		}
	}
	return nil
}

func checkList(l record.List) error {
	if l.Total != nil && *l.Total < 0 {
		return fmt.Errorf("%w: total %d", ErrInconsistent, *l.Total)
	}
	return checkRecords(l.Data)
}

func checkRecords(records []record.Record) error {
	for i, r := range records {
		if err := checkRecord(r); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
	}
	return nil
}

func checkRecord(r record.Record) error {
	if r == nil {
		return fmt.Errorf("%w: nil record", ErrInconsistent)
	}
	if record.IsEmptyID(r.ID()) {
		return fmt.Errorf("%w: record without id", ErrInconsistent)
	}
	return nil
}

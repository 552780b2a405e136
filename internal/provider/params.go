package provider

import (
	"maps"
	"slices"

	"github.com/revittco/mutacache/internal/record"
)

// Call-time params are layered over hook-level defaults field by field: a
// zero field at call time falls back to the default. Snapshot copies the
// result so later changes to the caller's maps cannot leak into a pending
// mutation.

func (p CreateParams) WithDefaults(d CreateParams) CreateParams {
	if p.Data == nil {
		p.Data = d.Data
	}
	if p.Meta == nil {
		p.Meta = d.Meta
	}
	return p
}

func (p CreateParams) Snapshot() CreateParams {
	p.Data = p.Data.Clone()
	p.Meta = maps.Clone(p.Meta)
	return p
}

func (p UpdateParams) WithDefaults(d UpdateParams) UpdateParams {
	if record.IsEmptyID(p.ID) {
		p.ID = d.ID
	}
	if p.Data == nil {
		p.Data = d.Data
	}
	if p.PreviousData == nil {
		p.PreviousData = d.PreviousData
	}
	if p.Meta == nil {
		p.Meta = d.Meta
	}
	return p
}

func (p UpdateParams) Snapshot() UpdateParams {
	p.Data = p.Data.Clone()
	p.PreviousData = p.PreviousData.Clone()
	p.Meta = maps.Clone(p.Meta)
	return p
}

func (p UpdateManyParams) WithDefaults(d UpdateManyParams) UpdateManyParams {
	if p.IDs == nil {
		p.IDs = d.IDs
	}
	if p.Data == nil {
		p.Data = d.Data
	}
	if p.Meta == nil {
		p.Meta = d.Meta
	}
	return p
}

func (p UpdateManyParams) Snapshot() UpdateManyParams {
	p.IDs = slices.Clone(p.IDs)
	p.Data = p.Data.Clone()
	p.Meta = maps.Clone(p.Meta)
	return p
}

func (p DeleteParams) WithDefaults(d DeleteParams) DeleteParams {
	if record.IsEmptyID(p.ID) {
		p.ID = d.ID
	}
	if p.PreviousData == nil {
		p.PreviousData = d.PreviousData
	}
	if p.Meta == nil {
		p.Meta = d.Meta
	}
	return p
}

func (p DeleteParams) Snapshot() DeleteParams {
	p.PreviousData = p.PreviousData.Clone()
	p.Meta = maps.Clone(p.Meta)
	return p
}

func (p DeleteManyParams) WithDefaults(d DeleteManyParams) DeleteManyParams {
	if p.IDs == nil {
		p.IDs = d.IDs
	}
	if p.Meta == nil {
		p.Meta = d.Meta
	}
	return p
}

func (p DeleteManyParams) Snapshot() DeleteManyParams {
	p.IDs = slices.Clone(p.IDs)
	p.Meta = maps.Clone(p.Meta)
	return p
}

package domain

// Record is one unit of input text: a question/answer pair from an
// interview transcript, plus the annotations accumulated by earlier
// stages. The ID is assigned at ingestion and never changes, so every
// downstream artifact can be traced back to its source segments.
type Record struct {
	// ID is the stable identity assigned at ingestion.
	ID string `json:"id"`

	// Index is the ordinal position in the transcript. Stage outputs are
	// restored to this order so artifact files are stable between runs.
	Index int `json:"index"`

	// Question is the interviewer's question, kept for context only.
	Question string `json:"question"`

	// Text is the answer body. Coding applies to Text, never to Question.
	Text string `json:"text"`

	// CodeIDs are the open codes assigned to this record. Empty until the
	// open-coding stage has run.
	CodeIDs []int `json:"code_ids,omitempty"`

	// Retained is set by the filtering stage. Nil means the record has not
	// been screened yet.
	Retained *bool `json:"retained,omitempty"`

	// ExcludeReason explains why the record was not retained.
	ExcludeReason string `json:"exclude_reason,omitempty"`

	// Categories are the axial categories this record's codes belong to.
	Categories []string `json:"categories,omitempty"`
}

// IsCoded returns true once the open-coding stage has annotated the record.
func (r *Record) IsCoded() bool {
	return len(r.CodeIDs) > 0
}

// IsRetained returns true if the filtering stage kept the record.
func (r *Record) IsRetained() bool {
	return r.Retained != nil && *r.Retained
}

// MarkRetained records the filtering verdict. The exclude reason is only
// meaningful for excluded records and is cleared otherwise.
func (r *Record) MarkRetained(retained bool, reason string) {
	r.Retained = &retained
	if retained {
		r.ExcludeReason = ""
	} else {
		r.ExcludeReason = reason
	}
}

// CloneRecords returns a deep copy of a record slice. Stage handoffs copy
// so a stage can never mutate its predecessor's persisted result.
func CloneRecords(records []Record) []Record {
	out := make([]Record, len(records))
	for i, r := range records {
		out[i] = r
		if r.CodeIDs != nil {
			out[i].CodeIDs = append([]int(nil), r.CodeIDs...)
		}
		if r.Retained != nil {
			v := *r.Retained
			out[i].Retained = &v
		}
		if r.Categories != nil {
			out[i].Categories = append([]string(nil), r.Categories...)
		}
	}
	return out
}

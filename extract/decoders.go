// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package extract

import (
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"github.com/poiesic/docvec/core"
)

// TextDecoder extracts plain text. It is also the universal fallback at the
// end of richer decoder chains.
type TextDecoder struct{}

func NewTextDecoder() *TextDecoder {
	return &TextDecoder{}
}

func (d *TextDecoder) Method() string {
	return "text"
}

func (d *TextDecoder) Decode(r io.Reader, ceilings Ceilings) (core.ExtractedContent, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return core.ExtractedContent{}, err
	}

	body := strings.ToValidUTF8(string(data), "�")
	return core.ExtractedContent{
		Kind:   core.ContentKindText,
		Body:   body,
		Method: d.Method(),
	}, nil
}

// CSVDecoder extracts row-structured data, rendering each row as a
// comma-joined line so the chunker sees retrieval-friendly text. Rows past
// the ceiling are dropped and the result marked truncated.
type CSVDecoder struct{}

func NewCSVDecoder() *CSVDecoder {
	return &CSVDecoder{}
}

func (d *CSVDecoder) Method() string {
	return "csv"
}

func (d *CSVDecoder) Decode(r io.Reader, ceilings Ceilings) (core.ExtractedContent, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.ReuseRecord = true

	var body strings.Builder
	// Rows accumulate into a small batch that is flushed and released every
	// ReleaseEvery rows, so a huge sheet never holds all its rows at once.
	batch := make([]string, 0, ceilings.ReleaseEvery)
	flush := func() {
		for _, line := range batch {
			body.WriteString(line)
			body.WriteByte('\n')
		}
		batch = batch[:0]
	}

	rows := 0
	var columns []string
	truncated := false

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return core.ExtractedContent{}, err
		}

		if ceilings.MaxRows > 0 && rows >= ceilings.MaxRows {
			truncated = true
			break
		}

		if rows == 0 {
			// First row doubles as the header. Copy it: the reader reuses
			// its record slice.
			columns = append([]string(nil), record...)
		}
		batch = append(batch, strings.Join(record, ", "))
		rows++

		if ceilings.ReleaseEvery > 0 && len(batch) >= ceilings.ReleaseEvery {
			flush()
		}
	}
	flush()

	return core.ExtractedContent{
		Kind:      core.ContentKindStructured,
		Body:      body.String(),
		Rows:      rows,
		Sheets:    1,
		Columns:   columns,
		Truncated: truncated,
		Method:    d.Method(),
	}, nil
}

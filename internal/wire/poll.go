package wire

import "filerelay/internal/change"

// PollRecord is the JSON shape of one event in a long-poll response.
// Content is base64 encoded by encoding/json.
type PollRecord struct {
	Kind    string `json:"kind"`
	Path    string `json:"path,omitempty"`
	Content []byte `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
}

func ToPollRecord(event change.Event) PollRecord {
	record := PollRecord{
		Kind: event.Kind.String(),
		Path: event.Path,
	}
	switch event.Kind {
	case change.KindCreate, change.KindUpdate:
		record.Content = event.Content
	case change.KindError:
		if event.Err != nil {
			record.Error = event.Err.Error()
		}
	}
	return record
}

func ToPollRecords(events []change.Event) []PollRecord {
	records := make([]PollRecord, 0, len(events))
	for _, event := range events {
		records = append(records, ToPollRecord(event))
	}
	return records
}

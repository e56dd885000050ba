package sheets

import (
	"encoding/json"
	"testing"
)

func TestNewWriter_Validation(t *testing.T) {
	tests := []struct {
		name   string
		config string
	}{
		{"missing sheet name", `{"sheet_id":"abc"}`},
		{"missing id and title", `{"sheet_name":"Transactions"}`},
		{"no http client", `{"sheet_id":"abc","sheet_name":"Transactions"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Plugin{}
			if _, err := p.NewWriter(nil, json.RawMessage(tt.config), nil); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

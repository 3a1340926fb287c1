package domain

import (
	"encoding/json"
	"testing"
)

func TestCreateResponse(t *testing.T) {
	id := json.RawMessage(`123`)
	result := map[string]interface{}{"success": true}

	response := CreateResponse(id, result)

	if response.JSONRPC != JSONRPCVersion {
		t.Errorf("CreateResponse().JSONRPC = %v, want %v", response.JSONRPC, JSONRPCVersion)
	}
	if string(response.ID) != "123" {
		t.Errorf("CreateResponse().ID = %s, want 123", response.ID)
	}
	if response.Error != nil {
		t.Error("CreateResponse().Error should be nil")
	}

	data, err := json.Marshal(response)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	want := `{"jsonrpc":"2.0","result":{"success":true},"id":123}`
	if string(data) != want {
		t.Errorf("Marshal() = %s, want %s", data, want)
	}
}

func TestCreateErrorResponse(t *testing.T) {
	tests := []struct {
		name string
		id   json.RawMessage
		want string
	}{
		{
			name: "String id",
			id:   json.RawMessage(`"abc123"`),
			want: `{"jsonrpc":"2.0","error":{"code":-32603,"message":"boom"},"id":"abc123"}`,
		},
		{
			name: "Missing id",
			id:   nil,
			want: `{"jsonrpc":"2.0","error":{"code":-32603,"message":"boom"},"id":null}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			response := CreateErrorResponse(tt.id, NewJSONRPCError(InternalErrorCode, "boom"))
			if response.Result != nil {
				t.Error("CreateErrorResponse().Result should be nil")
			}

			data, err := json.Marshal(response)
			if err != nil {
				t.Fatalf("Marshal failed: %v", err)
			}
			if string(data) != tt.want {
				t.Errorf("Marshal() = %s, want %s", data, tt.want)
			}
		})
	}
}

func TestRequestKeepsRawID(t *testing.T) {
	var req JSONRPCRequest
	if err := json.Unmarshal([]byte(`{"jsonrpc":"2.0","id":{"k":1},"method":"ping"}`), &req); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if string(req.ID) != `{"k":1}` {
		t.Errorf("ID = %s, want {\"k\":1}", req.ID)
	}
	if req.Method != "ping" {
		t.Errorf("Method = %q, want ping", req.Method)
	}
}

package intake

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRequest(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		want        Request
		expectError bool
	}{
		{
			name: "all fields",
			body: `{"token":"tok_1","email":"a@b.com","name":"A B","userPhoneID":"u1"}`,
			want: Request{PaymentToken: "tok_1", Email: "a@b.com", FullName: "A B", UserPhoneID: "u1"},
		},
		{
			name: "keys are case sensitive",
			body: `{"TOKEN":"tok_1","Email":"a@b.com","NAME":"A B","userphoneid":"u1"}`,
			want: Request{},
		},
		{
			name: "unknown keys ignored",
			body: `{"token":"tok_1","plan":"gold"}`,
			want: Request{PaymentToken: "tok_1"},
		},
		{
			name: "null field",
			body: `{"token":null,"email":"a@b.com"}`,
			want: Request{Email: "a@b.com"},
		},
		{name: "null body", body: `null`, want: Request{}},
		{name: "array body", body: `[{"token":"tok_1"}]`, want: Request{}},
		{name: "number body", body: `123`, want: Request{}},
		{name: "string body", body: `"abc"`, want: Request{}},
		{name: "boolean body", body: `true`, want: Request{}},
		{name: "not JSON", body: `{"token":`, expectError: true},
		{name: "empty", body: ``, expectError: true},
		{name: "trailing data", body: `{} {}`, expectError: true},
		{name: "non-string field", body: `{"userPhoneID":42}`, expectError: true},
		{name: "object field", body: `{"email":{"a":"b"}}`, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := DecodeRequest([]byte(tt.body))
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, *req)
		})
	}
}

func TestDecodeRequest_NonObjectFailsValidation(t *testing.T) {
	for _, body := range []string{`[]`, `123`, `"abc"`, `null`} {
		req, err := DecodeRequest([]byte(body))
		require.NoError(t, err)
		assert.Equal(t, KindValidationFailed, KindOf(req.Validate()), body)
	}
}

package membership

import (
	"errors"
	"testing"

	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/domain"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name          string
		handle        string
		result        LookupResult
		wantKind      Kind
		wantRetryable bool
		wantErr       error
	}{
		{
			name:     "found with exact handle is internal",
			handle:   "octocat",
			result:   Found(Record{GithubHandle: "octocat"}),
			wantKind: KindInternal,
		},
		{
			name:     "unrecognized is outside collaborator",
			handle:   "octocat",
			result:   Unrecognized(),
			wantKind: KindOutsideCollaborator,
		},
		{
			name:          "transient failure is retryable",
			handle:        "octocat",
			result:        Transient(errors.New("429 too many requests")),
			wantKind:      KindLookupFailed,
			wantRetryable: true,
			wantErr:       domain.ErrTransient,
		},
		{
			name:     "malformed response is not retryable",
			handle:   "octocat",
			result:   Malformed(errors.New("unexpected end of JSON input")),
			wantKind: KindLookupFailed,
			wantErr:  domain.ErrDataIntegrity,
		},
		{
			name:     "found with different handle is a data integrity failure",
			handle:   "octocat",
			result:   Found(Record{GithubHandle: "octodog"}),
			wantKind: KindLookupFailed,
			wantErr:  domain.ErrDataIntegrity,
		},
		{
			name:     "handle comparison is exact",
			handle:   "octocat",
			result:   Found(Record{GithubHandle: "OctoCat"}),
			wantKind: KindLookupFailed,
			wantErr:  domain.ErrDataIntegrity,
		},
		{
			name:     "found without record",
			handle:   "octocat",
			result:   LookupResult{Status: StatusFound},
			wantKind: KindLookupFailed,
			wantErr:  domain.ErrDataIntegrity,
		},
		{
			name:     "zero result",
			handle:   "octocat",
			result:   LookupResult{},
			wantKind: KindLookupFailed,
			wantErr:  domain.ErrDataIntegrity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.handle, tt.result)
			if got.Kind != tt.wantKind {
				t.Fatalf("Kind = %v, want %v", got.Kind, tt.wantKind)
			}
			if got.Retryable != tt.wantRetryable {
				t.Errorf("Retryable = %v, want %v", got.Retryable, tt.wantRetryable)
			}
			if tt.wantErr == nil && got.Err != nil {
				t.Errorf("unexpected error: %v", got.Err)
			}
			if tt.wantErr != nil && !errors.Is(got.Err, tt.wantErr) {
				t.Errorf("Err = %v, want %v", got.Err, tt.wantErr)
			}
		})
	}
}

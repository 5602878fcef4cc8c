package backend

import "testing"

func TestArtifactKindNeedsBuild(t *testing.T) {
	tests := []struct {
		kind ArtifactKind
		want bool
	}{
		{KindSource, true},
		{KindBinary, false},
		{ArtifactKind(""), true},
		{ArtifactKind("mystery"), true},
	}

	for _, tt := range tests {
		if got := tt.kind.NeedsBuild(); got != tt.want {
			t.Errorf("%q.NeedsBuild() = %v, want %v", tt.kind, got, tt.want)
		}
	}
}

func TestParseArtifactKind(t *testing.T) {
	tests := []struct {
		input   string
		want    ArtifactKind
		wantErr bool
	}{
		{input: "source", want: KindSource},
		{input: "binary", want: KindBinary},
		{input: "", want: KindSource},
		{input: "tarball", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseArtifactKind(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseArtifactKind(%q) succeeded, want error", tt.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseArtifactKind(%q): %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseArtifactKind(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestResolvedItemKey(t *testing.T) {
	it := ResolvedItem{Name: "libfoo", Version: "1.2.0"}
	if got := it.Key(); got != "libfoo@1.2.0" {
		t.Errorf("Key() = %q, want %q", got, "libfoo@1.2.0")
	}
}

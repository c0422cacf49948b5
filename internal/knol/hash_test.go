package knol

import (
	"testing"

	"github.com/conorfennell/ankibot/internal/domain"
)

func TestNormalize(t *testing.T) {
	fields := domain.FieldSet{
		"Vocabulary-Kana":  "  みず \r\n",
		"Vocabulary-Kanji": "水",
	}
	expected := "Vocabulary-Kana=みず\nVocabulary-Kanji=水"
	normalized := Normalize(fields)

	if normalized != expected {
		t.Errorf("Expected normalized string to be '%s', but got '%s'", expected, normalized)
	}
}

func TestHash(t *testing.T) {
	t.Run("hash is deterministic", func(t *testing.T) {
		f1 := domain.FieldSet{"A": "1", "B": "2"}
		f2 := domain.FieldSet{"B": "2", "A": "1"}
		if Hash(f1) != Hash(f2) {
			t.Error("Expected hashes for identical field sets to be the same")
		}
	})

	t.Run("whitespace does not change the hash", func(t *testing.T) {
		f1 := domain.FieldSet{"Expression": "水を飲む"}
		f2 := domain.FieldSet{"Expression": " 水を飲む\r\n"}
		if Hash(f1) != Hash(f2) {
			t.Error("Expected hashes to be the same after normalization, but they were different.")
		}
	})

	t.Run("different values have different hashes", func(t *testing.T) {
		f1 := domain.FieldSet{"Expression": "水"}
		f2 := domain.FieldSet{"Expression": "火"}
		if Hash(f1) == Hash(f2) {
			t.Error("Expected hashes for different field sets to be different")
		}
	})

	t.Run("hash is hex sha256", func(t *testing.T) {
		if got := len(Hash(domain.FieldSet{})); got != 64 {
			t.Errorf("Expected a 64 character hash, got %d", got)
		}
	})
}

package translator

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

// assOverrideRe strips inline ASS override blocks like {\pos(10,20)\i1}.
var assOverrideRe = regexp.MustCompile(`\{[^}]*\}`)

// NormalizeLine canonicalizes a subtitle line for memory lookup: override
// tags removed, lower-cased, whitespace collapsed.
func NormalizeLine(line string) string {
	stripped := assOverrideRe.ReplaceAllString(line, "")
	stripped = strings.ReplaceAll(stripped, `\N`, " ")
	stripped = strings.ReplaceAll(stripped, `\n`, " ")
	return strings.Join(strings.Fields(strings.ToLower(stripped)), " ")
}

// NormalizedHash returns the memory key for a line.
func NormalizedHash(line string) string {
	h := sha256.Sum256([]byte(NormalizeLine(line)))
	return hex.EncodeToString(h[:])
}

// BigramDice returns the character-bigram Dice similarity of two strings
// in [0, 1]. Strings shorter than two runes only match exactly.
func BigramDice(a, b string) float64 {
	if a == b {
		return 1
	}
	ra, rb := []rune(a), []rune(b)
	if len(ra) < 2 || len(rb) < 2 {
		return 0
	}

	bigrams := func(rs []rune) map[string]int {
		m := make(map[string]int, len(rs)-1)
		for i := 0; i < len(rs)-1; i++ {
			m[string(rs[i:i+2])]++
		}
		return m
	}

	ma, mb := bigrams(ra), bigrams(rb)
	overlap := 0
	for bg, ca := range ma {
		if cb, ok := mb[bg]; ok {
			if cb < ca {
				overlap += cb
			} else {
				overlap += ca
			}
		}
	}
	return 2 * float64(overlap) / float64(len(ra)-1+len(rb)-1)
}

// Memory is the translation memory store. Identical source lines translate
// identically and for free on every later encounter.
type Memory struct {
	db *sql.DB
}

// NewMemory creates the translation memory store.
func NewMemory(db *sql.DB) *Memory {
	return &Memory{db: db}
}

// Lookup returns the stored translation for a line. An exact normalized-hash
// hit wins; otherwise the best fuzzy candidate at or above minSimilarity.
func (m *Memory) Lookup(ctx context.Context, sourceLang, targetLang, line string, minSimilarity float64) (string, bool, error) {
	normalized := NormalizeLine(line)
	if normalized == "" {
		return "", false, nil
	}
	hash := NormalizedHash(line)

	var translated string
	err := m.db.QueryRowContext(ctx, `
		SELECT translated_text FROM translation_memory
		WHERE source_lang = ? AND target_lang = ? AND normalized_hash = ?`,
		sourceLang, targetLang, hash).Scan(&translated)
	if err == nil {
		m.touch(ctx, sourceLang, targetLang, hash)
		return translated, true, nil
	}
	if err != sql.ErrNoRows {
		return "", false, fmt.Errorf("failed to query translation memory: %w", err)
	}

	// Fuzzy pass over same-length-ballpark candidates. The length filter
	// bounds the scan; Dice similarity 0.9 implies near-equal length.
	minLen := int(float64(len(normalized)) * 0.8)
	maxLen := int(float64(len(normalized)) * 1.25)
	rows, err := m.db.QueryContext(ctx, `
		SELECT normalized_text, translated_text, normalized_hash FROM translation_memory
		WHERE source_lang = ? AND target_lang = ?
		  AND length(normalized_text) BETWEEN ? AND ?`,
		sourceLang, targetLang, minLen, maxLen)
	if err != nil {
		return "", false, fmt.Errorf("failed to query translation memory: %w", err)
	}
	defer rows.Close()

	bestSim := 0.0
	bestText, bestHash := "", ""
	for rows.Next() {
		var candidate, candTranslated, candHash string
		if err := rows.Scan(&candidate, &candTranslated, &candHash); err != nil {
			return "", false, fmt.Errorf("failed to scan translation memory row: %w", err)
		}
		if sim := BigramDice(normalized, candidate); sim >= minSimilarity && sim > bestSim {
			bestSim, bestText, bestHash = sim, candTranslated, candHash
		}
	}
	if err := rows.Err(); err != nil {
		return "", false, err
	}

	if bestSim >= minSimilarity {
		m.touch(ctx, sourceLang, targetLang, bestHash)
		return bestText, true, nil
	}
	return "", false, nil
}

func (m *Memory) touch(ctx context.Context, sourceLang, targetLang, hash string) {
	_, _ = m.db.ExecContext(ctx, `
		UPDATE translation_memory SET use_count = use_count + 1
		WHERE source_lang = ? AND target_lang = ? AND normalized_hash = ?`,
		sourceLang, targetLang, hash)
}

// Store persists one successful translation pair.
func (m *Memory) Store(ctx context.Context, sourceLang, targetLang, sourceLine, translatedLine string) error {
	normalized := NormalizeLine(sourceLine)
	if normalized == "" || strings.TrimSpace(translatedLine) == "" {
		return nil
	}
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO translation_memory (source_lang, target_lang, normalized_hash, normalized_text, translated_text)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(source_lang, target_lang, normalized_hash)
		DO UPDATE SET translated_text = excluded.translated_text`,
		sourceLang, targetLang, NormalizedHash(sourceLine), normalized, translatedLine)
	if err != nil {
		return fmt.Errorf("failed to store translation memory entry: %w", err)
	}
	return nil
}

// Count returns the number of stored pairs for a language pair.
func (m *Memory) Count(ctx context.Context, sourceLang, targetLang string) (int64, error) {
	var n int64
	err := m.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM translation_memory WHERE source_lang = ? AND target_lang = ?`,
		sourceLang, targetLang).Scan(&n)
	return n, err
}

// Clear removes all entries for a language pair, or everything when both
// arguments are empty.
func (m *Memory) Clear(ctx context.Context, sourceLang, targetLang string) error {
	var err error
	if sourceLang == "" && targetLang == "" {
		_, err = m.db.ExecContext(ctx, `DELETE FROM translation_memory`)
	} else {
		_, err = m.db.ExecContext(ctx, `
			DELETE FROM translation_memory WHERE source_lang = ? AND target_lang = ?`,
			sourceLang, targetLang)
	}
	if err != nil {
		return fmt.Errorf("failed to clear translation memory: %w", err)
	}
	return nil
}

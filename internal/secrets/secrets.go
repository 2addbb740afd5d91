// Package secrets owns the per-item verification question sets: answer
// normalization, salted Argon2id answer hashes, and the three-bit
// correctness check. Answers and salts never leave this package.
package secrets

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/byaboneka/byaboneka/internal/auth"
	"github.com/byaboneka/byaboneka/internal/model"
)

// Normalize canonicalizes an answer before hashing or comparison:
// lowercase, punctuation stripped to spaces, whitespace collapsed,
// trimmed. Every casing/padding/punctuation variant of an answer maps
// to the same normalized form.
func Normalize(answer string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, answer)
	return strings.Join(strings.Fields(mapped), " ")
}

// BuildSet converts exactly three QA pairs into storable secret
// triples, generating a fresh 16-byte salt per answer. The plaintext
// answers are hashed and discarded.
func BuildSet(pairs []model.QAPair) ([]model.ItemSecret, error) {
	if len(pairs) != model.SecretSetSize {
		return nil, fmt.Errorf("secrets: expected %d question-answer pairs, got %d", model.SecretSetSize, len(pairs))
	}

	triples := make([]model.ItemSecret, len(pairs))
	for i, p := range pairs {
		question := strings.TrimSpace(p.Question)
		if question == "" {
			return nil, fmt.Errorf("secrets: question %d is empty", i+1)
		}
		normalized := Normalize(p.Answer)
		if normalized == "" {
			return nil, fmt.Errorf("secrets: answer %d is empty after normalization", i+1)
		}

		salt, err := auth.NewSalt()
		if err != nil {
			return nil, fmt.Errorf("secrets: %w", err)
		}
		triples[i] = model.ItemSecret{
			Position:   i + 1,
			Question:   question,
			Salt:       salt,
			AnswerHash: auth.HashSecret(normalized, salt),
		}
	}
	return triples, nil
}

// SecretSource loads the stored triples for a lost item.
type SecretSource interface {
	GetItemSecrets(ctx context.Context, lostItemID uuid.UUID) ([]model.ItemSecret, error)
}

// Store reads question sets and checks submitted answers.
type Store struct {
	src SecretSource
}

// NewStore creates a Store backed by src.
func NewStore(src SecretSource) *Store {
	return &Store{src: src}
}

// Questions returns a lost item's questions in position order. Answer
// material is never included.
func (s *Store) Questions(ctx context.Context, lostItemID uuid.UUID) ([]string, error) {
	triples, err := s.src.GetItemSecrets(ctx, lostItemID)
	if err != nil {
		return nil, err
	}
	questions := make([]string, len(triples))
	for i, t := range triples {
		questions[i] = t.Question
	}
	return questions, nil
}

// Verify checks three submitted answers against a lost item's stored
// triples and returns the per-position correctness bits. Every
// position is compared regardless of earlier results, so response
// timing does not reveal which answers matched.
func (s *Store) Verify(ctx context.Context, lostItemID uuid.UUID, submitted []string) ([model.SecretSetSize]bool, error) {
	var bits [model.SecretSetSize]bool

	if len(submitted) != model.SecretSetSize {
		return bits, fmt.Errorf("secrets: expected %d answers, got %d", model.SecretSetSize, len(submitted))
	}

	triples, err := s.src.GetItemSecrets(ctx, lostItemID)
	if err != nil {
		return bits, err
	}
	if len(triples) != model.SecretSetSize {
		return bits, fmt.Errorf("secrets: lost item %s has %d stored secrets", lostItemID, len(triples))
	}

	for i, t := range triples {
		bits[i] = auth.VerifySecret(Normalize(submitted[i]), t.Salt, t.AnswerHash)
	}
	return bits, nil
}

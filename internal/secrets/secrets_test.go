package secrets_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byaboneka/byaboneka/internal/model"
	"github.com/byaboneka/byaboneka/internal/secrets"
)

type fakeSource struct {
	triples []model.ItemSecret
	err     error
}

func (f *fakeSource) GetItemSecrets(ctx context.Context, lostItemID uuid.UUID) ([]model.ItemSecret, error) {
	return f.triples, f.err
}

func threePairs() []model.QAPair {
	return []model.QAPair{
		{Question: "What is the phone wallpaper?", Answer: "A photo of Lake Kivu"},
		{Question: "What sticker is on the back?", Answer: "MTN MoMo"},
		{Question: "What is the lock code pattern?", Answer: "Letter Z"},
	}
}

func TestNormalize(t *testing.T) {
	cases := []struct{ in, want string }{
		{"  Blue Cover ", "blue cover"},
		{"BLUE   cover!!!", "blue cover"},
		{"blue-cover", "blue cover"},
		{"Pin: 4-2-7", "pin 4 2 7"},
		{"?!", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, secrets.Normalize(tc.in), "input %q", tc.in)
	}
}

func TestBuildSetRequiresThreePairs(t *testing.T) {
	_, err := secrets.BuildSet(threePairs()[:2])
	assert.Error(t, err)

	_, err = secrets.BuildSet(append(threePairs(), model.QAPair{Question: "q", Answer: "a"}))
	assert.Error(t, err)
}

func TestBuildSetRejectsEmptyQuestionOrAnswer(t *testing.T) {
	pairs := threePairs()
	pairs[1].Question = "   "
	_, err := secrets.BuildSet(pairs)
	assert.Error(t, err)

	pairs = threePairs()
	pairs[2].Answer = "?!"
	_, err = secrets.BuildSet(pairs)
	assert.Error(t, err)
}

func TestBuildSetHashesAndDiscardsPlaintext(t *testing.T) {
	triples, err := secrets.BuildSet(threePairs())
	require.NoError(t, err)
	require.Len(t, triples, 3)

	for i, triple := range triples {
		assert.Equal(t, i+1, triple.Position)
		assert.NotEmpty(t, triple.Question)
		assert.Len(t, triple.Salt, 16)
		assert.NotEmpty(t, triple.AnswerHash)
		assert.NotContains(t, string(triple.AnswerHash), "lake")
	}
	// Identical answers under different salts must hash differently.
	same := []model.QAPair{
		{Question: "q1", Answer: "same answer"},
		{Question: "q2", Answer: "same answer"},
		{Question: "q3", Answer: "same answer"},
	}
	triples, err = secrets.BuildSet(same)
	require.NoError(t, err)
	assert.NotEqual(t, triples[0].AnswerHash, triples[1].AnswerHash)
}

func TestVerifyGradesEachPosition(t *testing.T) {
	triples, err := secrets.BuildSet(threePairs())
	require.NoError(t, err)
	store := secrets.NewStore(&fakeSource{triples: triples})

	bits, err := store.Verify(context.Background(), uuid.New(), []string{
		"a photo of lake kivu", // correct, normalized
		"Airtel Money",         // wrong
		"  LETTER Z!! ",        // correct after normalization
	})
	require.NoError(t, err)
	assert.Equal(t, [3]bool{true, false, true}, bits)
}

func TestVerifyRejectsWrongAnswerCount(t *testing.T) {
	triples, err := secrets.BuildSet(threePairs())
	require.NoError(t, err)
	store := secrets.NewStore(&fakeSource{triples: triples})

	_, err = store.Verify(context.Background(), uuid.New(), []string{"one", "two"})
	assert.Error(t, err)
}

func TestQuestionsNeverExposeAnswers(t *testing.T) {
	triples, err := secrets.BuildSet(threePairs())
	require.NoError(t, err)
	store := secrets.NewStore(&fakeSource{triples: triples})

	questions, err := store.Questions(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, []string{
		"What is the phone wallpaper?",
		"What sticker is on the back?",
		"What is the lock code pattern?",
	}, questions)
}

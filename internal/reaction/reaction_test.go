package reaction

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"expohub/internal/models"
)

func TestToggled(t *testing.T) {
	cases := []struct {
		current, pressed, want models.Kind
	}{
		{models.None, models.Like, models.Like},
		{models.None, models.Dislike, models.Dislike},
		{models.Like, models.Like, models.None},
		{models.Like, models.Dislike, models.Dislike},
		{models.Dislike, models.Dislike, models.None},
		{models.Dislike, models.Like, models.Like},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Toggled(c.current, c.pressed), "%q + %q", c.current, c.pressed)
	}
}

func TestPlan(t *testing.T) {
	assert.Empty(t, Plan(models.Like, models.Like))
	assert.Empty(t, Plan(models.None, models.None))

	assert.Equal(t, []Step{InsertLike, IncrementLikes}, Plan(models.None, models.Like))
	assert.Equal(t, []Step{DeleteLike, DecrementLikes}, Plan(models.Like, models.None))
	assert.Equal(t,
		[]Step{DeleteLike, DecrementLikes, InsertDislike, IncrementDislikes},
		Plan(models.Like, models.Dislike))
	assert.Equal(t,
		[]Step{DeleteDislike, DecrementDislikes, InsertLike, IncrementLikes},
		Plan(models.Dislike, models.Like))
}

// Pressing the same button twice nets every counter back to zero.
func TestPlanTwiceIsNeutral(t *testing.T) {
	for _, pressed := range []models.Kind{models.Like, models.Dislike} {
		for _, start := range []models.Kind{models.None, models.Like, models.Dislike} {
			mid := Toggled(start, pressed)
			end := Toggled(mid, pressed)

			var likes, dislikes int
			for _, s := range append(Plan(start, mid), Plan(mid, end)...) {
				switch s {
				case IncrementLikes:
					likes++
				case DecrementLikes:
					likes--
				case IncrementDislikes:
					dislikes++
				case DecrementDislikes:
					dislikes--
				}
			}
			if start == pressed {
				assert.Equal(t, start, end)
			}
			assert.Equal(t, net(start, end, models.Like), likes, "%q from %q", pressed, start)
			assert.Equal(t, net(start, end, models.Dislike), dislikes, "%q from %q", pressed, start)
		}
	}
}

func net(from, to, k models.Kind) int {
	n := 0
	if to == k {
		n++
	}
	if from == k {
		n--
	}
	return n
}

func TestStepString(t *testing.T) {
	assert.Equal(t, "undislike", DecrementDislikes.String())
	assert.Equal(t, "insert-like", InsertLike.String())
}

func TestTransition(t *testing.T) {
	next, steps := Transition(models.Like, models.Dislike)
	assert.Equal(t, models.Dislike, next)
	assert.Equal(t, []Step{DeleteLike, DecrementLikes, InsertDislike, IncrementDislikes}, steps)

	next, steps = Transition(models.Dislike, models.Dislike)
	assert.Equal(t, models.None, next)
	assert.Equal(t, []Step{DeleteDislike, DecrementDislikes}, steps)
}

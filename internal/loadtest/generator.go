package loadtest

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/google/uuid"

	"github.com/okian/rsvp/internal/domain/model"
)

var (
	firstNames = []string{"Alex", "Sam", "Jordan", "Riley", "Casey", "Morgan", "Avery", "Quinn"}
	games      = []string{"Catan", "Azul", "Wingspan", "Carcassonne", "Codenames", ""}
	diets      = []string{"", "", "vegetarian", "vegan", "gluten-free"}
)

func randomInt(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0
	}
	return int(v.Int64())
}

func pick(values []string) string {
	return values[randomInt(len(values))]
}

// randomDraft returns a valid draft with a unique email.
func randomDraft() model.Draft {
	name := pick(firstNames)
	return model.Draft{
		Name:          name,
		Email:         fmt.Sprintf("%s+%s@example.com", name, uuid.NewString()[:8]),
		Guests:        model.MinGuests + randomInt(model.MaxGuests-model.MinGuests+1),
		FavoriteGames: pick(games),
		Dietary:       pick(diets),
	}
}

package user

import (
	"strings"

	"github.com/simp-lee/userdir/internal/domain"
)

// FilterByName returns the users whose name, username or email contains term,
// ignoring case and surrounding whitespace. A blank term returns users itself.
// Order is preserved and the input slice is never modified.
func FilterByName(users []domain.User, term string) []domain.User {
	needle := strings.ToLower(strings.TrimSpace(term))
	if needle == "" {
		return users
	}

	out := make([]domain.User, 0, len(users))
	for _, u := range users {
		if matches(u, needle) {
			out = append(out, u)
		}
	}
	return out
}

func matches(u domain.User, needle string) bool {
	return strings.Contains(strings.ToLower(u.Name), needle) ||
		strings.Contains(strings.ToLower(u.Username), needle) ||
		strings.Contains(strings.ToLower(u.Email), needle)
}

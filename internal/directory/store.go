package directory

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/tariel-x/gomeet/internal/models"
)

const searchLimit = 10

// Store answers directory lookups from the local accounts and rooms
// tables. It backs the directory when no external search service is
// configured, and serves this server's own directory endpoint.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Search matches text against usernames and room names. The types slice
// restricts which candidate kinds are returned; empty means users and
// plain rooms.
func (s *Store) Search(ctx context.Context, text string, types []string) (models.CandidateList, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.CandidateList{}, nil
	}

	want := make(map[string]bool, len(types))
	for _, t := range types {
		if t = strings.TrimSpace(t); t != "" {
			want[t] = true
		}
	}
	if len(want) == 0 {
		want[string(models.CandidateTypeUser)] = true
		want[string(models.CandidateTypeRoom)] = true
	}

	pattern := "%" + text + "%"
	results := models.CandidateList{}

	if want[string(models.CandidateTypeUser)] {
		var accounts []models.Account
		if err := s.db.WithContext(ctx).
			Where("username LIKE ?", pattern).
			Order("username ASC").
			Limit(searchLimit).
			Find(&accounts).Error; err != nil {
			return nil, fmt.Errorf("search accounts: %w", err)
		}
		for _, account := range accounts {
			results = append(results, models.User{ID: account.ID, Name: account.Username, Avatar: account.Avatar})
		}
	}

	var kinds []models.RoomKind
	if want[string(models.CandidateTypeRoom)] {
		kinds = append(kinds, models.RoomKindConference)
	}
	if want[string(models.CandidateTypeVideoSIPGW)] {
		kinds = append(kinds, models.RoomKindVideoSIPGW)
	}
	if len(kinds) > 0 {
		var rooms []models.DirectoryRoom
		if err := s.db.WithContext(ctx).
			Where("name LIKE ? AND kind IN ?", pattern, kinds).
			Order("name ASC").
			Limit(searchLimit).
			Find(&rooms).Error; err != nil {
			return nil, fmt.Errorf("search rooms: %w", err)
		}
		for _, room := range rooms {
			switch room.Kind {
			case models.RoomKindVideoSIPGW:
				results = append(results, models.VideoSIPGW{ID: room.ID, Name: room.Name})
			default:
				results = append(results, models.Room{ID: room.ID, Name: room.Name})
			}
		}
	}

	return results, nil
}

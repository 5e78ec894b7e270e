package pipeline

import "sort"

// Category is a named group of search queries. Target caps how many
// playlists the category contributes; 0 means no cap.
type Category struct {
	Name    string
	Queries []string
	Target  int
}

// DefaultCategories is the workout query matrix searched when no categories
// are configured.
func DefaultCategories() []Category {
	return []Category{
		{"general_workout", []string{"workout", "gym", "fitness", "training", "exercise"}, 150},
		{"running_cardio", []string{"running", "cardio", "jogging", "marathon", "treadmill", "5k", "10k"}, 120},
		{"strength_weights", []string{"weights", "powerlifting", "strength", "bodybuilding", "pump", "iron"}, 100},
		{"hiit_intense", []string{"HIIT", "intense", "crossfit", "beast mode", "hardcore", "tabata"}, 100},
		{"yoga_stretching", []string{"yoga", "stretching", "pilates", "cool down", "flexibility", "meditation"}, 80},
		{"cycling_spinning", []string{"cycling", "spinning", "peloton", "bike", "indoor cycling"}, 70},
		{"sports_specific", []string{"basketball", "soccer", "tennis", "boxing", "mma", "sports"}, 60},
		{"dance_zumba", []string{"dance workout", "zumba", "aerobics", "cardio dance"}, 50},
	}
}

// CategoriesFromMap orders a category->queries map by name.
func CategoriesFromMap(m map[string][]string) []Category {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Category, 0, len(names))
	for _, name := range names {
		if len(m[name]) == 0 {
			continue
		}
		out = append(out, Category{Name: name, Queries: m[name]})
	}
	return out
}

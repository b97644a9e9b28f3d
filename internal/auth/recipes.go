package auth

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/ternarybob/arbor"

	"github.com/feedclip/feedclip/internal/models"
)

// LoadRecipes reads every .toml file in the directory into validated login
// recipes keyed by site id. One file per recipe; the file's site_id wins
// over the filename.
func LoadRecipes(logger arbor.ILogger, dirPath string) (map[string]*models.LoginRecipe, error) {
	recipes := make(map[string]*models.LoginRecipe)

	info, err := os.Stat(dirPath)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Warn().Str("dir", dirPath).Msg("Recipes directory not found, no login recipes loaded")
			return recipes, nil
		}
		return nil, fmt.Errorf("failed to stat recipes directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("recipes path %s is not a directory", dirPath)
	}

	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read recipes directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".toml") {
			continue
		}
		path := filepath.Join(dirPath, entry.Name())

		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read recipe file %s: %w", path, err)
		}

		var recipe models.LoginRecipe
		if err := toml.Unmarshal(content, &recipe); err != nil {
			return nil, fmt.Errorf("failed to parse recipe file %s: %w", path, err)
		}
		if err := recipe.Validate(); err != nil {
			return nil, fmt.Errorf("invalid recipe in %s: %w", path, err)
		}
		if _, exists := recipes[recipe.SiteID]; exists {
			return nil, fmt.Errorf("duplicate recipe for site %s in %s", recipe.SiteID, path)
		}
		recipes[recipe.SiteID] = &recipe
	}

	logger.Info().
		Str("dir", dirPath).
		Int("recipes", len(recipes)).
		Msg("Login recipes loaded")
	return recipes, nil
}

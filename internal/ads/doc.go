// Package ads loads the TOML product catalog and picks which product to
// promote for a given video theme.
package ads

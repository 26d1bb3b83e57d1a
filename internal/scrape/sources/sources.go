// Package sources declares the recipe websites the pipeline knows about.
//
// A module declared here is crawled only after it is registered in storage
// (recipes register NAME).
package sources

import "recipes/internal/rules"

// All returns every declared source module.
func All() []rules.Source {
	return []rules.Source{
		EdaRu(),
		PovarenokBy(),
	}
}

// Package discovery defines the boundary to the causal-discovery engine.
//
// The engine itself (PCMCI+ and its conditional independence tests) is an
// external collaborator. This package only describes what is sent to it and
// what comes back:
//
//   - Params: the tau window and significance level
//   - CondIndTest: which independence test the engine should use
//   - LinkDict: per target variable, the significant (source, lag) links
//
// # Engine Protocol
//
// ExecDiscoverer talks to an engine executable over stdin/stdout. The request
// is a single JSON object:
//
//	{"variables": ["a", "b"], "data": [[0.1, 0.2], ...],
//	 "tau_min": 1, "tau_max": 100, "alpha": 0.05, "cond_ind_test": "parcorr"}
//
// The engine answers with either the significant links, indexed by column:
//
//	{"link_dict": [[[1, 1], [1, 3]], []]}
//
// or a classified failure:
//
//	{"error": {"kind": "linalg", "message": "Singular matrix"}}
//
// Failures of kind "linalg" unwrap to ErrLinAlg so callers can apply a
// numerical-failure policy; anything else is a plain engine error.
package discovery

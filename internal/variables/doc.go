// Package variables resolves placeholder variables into text. Variables are
// declared in a Registry, resolvers are contributed per variable name, and the
// Engine selects the highest scoring resolver for each request. Resolvers may
// ask the engine for other variables while computing their own value; those
// nested requests share one Cache so every (name, argument) pair is resolved
// at most once per call tree and cycles are cut instead of recursing forever.
package variables

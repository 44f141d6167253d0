// Package loader implements the module cache: resolution of module ids,
// commonjs-style execution of module source, and in-place hot reload.
//
// A requested id is matched against named virtual loaders first, then
// normalized and passed down the resolver chain. Module identity is the
// resolved path, so the same file reached through different relative
// requests occupies one cache slot. Loading is idempotent.
//
// Reload never replaces a Module or its Exports object. The dirty module's
// source re-executes against the existing exports namespace, so script
// code holding a reference from an earlier require observes the updated
// members without re-requiring.
package loader

// Package mocks provides gomock implementations of the heal pipeline ports.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	gen := mocks.NewMockGenerator(ctrl)
//	gen.EXPECT().Generate(gomock.Any(), gomock.Any()).Return(`{"summary":"fix"}`, nil)
package mocks

// Job store and progress surface.
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=job_progress_mock.go github.com/target/selfheal/internal/core JobProgress
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=job_store_mock.go github.com/target/selfheal/internal/core JobStore
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=job_archive_mock.go github.com/target/selfheal/internal/core JobArchive
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=archive_pruner_mock.go github.com/target/selfheal/internal/core ArchivePruner

// External services.
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=generator_mock.go github.com/target/selfheal/internal/core Generator
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=source_control_mock.go github.com/target/selfheal/internal/core SourceControl

// Checkout and patch pipeline stages.
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=workspace_mock.go github.com/target/selfheal/internal/core Workspace
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=cloner_mock.go github.com/target/selfheal/internal/core Cloner
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=bundle_builder_mock.go github.com/target/selfheal/internal/core BundleBuilder
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=patch_engine_mock.go github.com/target/selfheal/internal/core PatchEngine
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=verifier_mock.go github.com/target/selfheal/internal/core Verifier

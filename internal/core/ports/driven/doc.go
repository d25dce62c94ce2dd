// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
//   - LLMService: The single outbound call primitive every stage uses
//   - PromptStore: Stage prompt templates (user-editable with defaults)
//   - ArtifactStore: Stage result persistence (the resume source of truth)
//   - ConfigStore: Application configuration
//
// # Optional Interfaces
//
//   - RunStore: Run history for the status command. When nil, runs are
//     not recorded but the pipeline still works.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter or normaliser package
package driven

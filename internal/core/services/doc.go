// Package services implements the driving port interfaces.
// Services contain the core pipeline logic: the generic stage processor,
// the five stage configurations, and the orchestrator that runs them in
// order and persists each stage's output before the next one starts.
package services

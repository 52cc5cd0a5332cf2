// Package triage provides the business boundary for intake's question triage.
// It defines the Engine (the conversation state machine and confidence policy),
// the Service (session table, busy guard, hand-off notifications), the Store
// interface (live session persistence), and the domain models.
package triage

// Package revflow provides a document review workflow engine.
//
// Documents are submitted into review sessions that walk the stages of a
// versioned workflow definition. Each stage is staffed from a reviewer
// directory, reviewers open rounds, leave feedback and close the round with
// a decision and scores. The engine advances, loops back for revision or
// completes the session, and escalates sessions that stall.
//
// Subsystems live under service/:
//
//   - registry  – versioned workflow definitions
//   - directory – reviewer profiles, availability and metrics
//   - planner   – reviewer selection for a stage group
//   - session   – the session state machine
//   - escalation – rule evaluation and the periodic scheduler
//   - notify, audit – outbound side effects
//
// The Service façade in this package serialises updates per session:
//
//	srv, _ := revflow.New()
//	_ = srv.LoadWorkflows(ctx, "workflows.yaml")
//	_ = srv.LoadReviewers(ctx, "reviewers.yaml")
//	session, _ := srv.CreateSession(ctx, &revflow.CreateSessionRequest{...}, "alice")
//
// Hosts drive escalation by calling Service.Tick on their own schedule.
package revflow

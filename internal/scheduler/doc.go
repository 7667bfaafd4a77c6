// Package scheduler fires the periodic engine jobs on cron schedules:
// the consumption sweep, backup rotation and idle reminders.
//
// A trigger whose previous run is still active is skipped rather than queued,
// so a slow backup rotation never piles up behind itself.
package scheduler

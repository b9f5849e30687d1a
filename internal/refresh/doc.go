// Package refresh runs imports on cron schedules.
//
// Each schedule entry names a target (an entity id or "all"). A tick that
// fires while another import is running is skipped rather than queued; the
// next tick picks up from the stored watermarks and checkpoints.
package refresh

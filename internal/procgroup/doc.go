// Package procgroup keeps every process spawned by the supervisor, and every
// descendant of those processes, inside one container that can be torn down
// as a unit.
//
// On Unix each child is started as the leader of a new process group and the
// container remembers those groups; Destroy signals every group with SIGKILL,
// which reaches grandchildren that did not leave the group. On Linux children
// are additionally spawned with a parent-death signal so that a supervisor
// killed from outside does not leave them running, and an optional cgroup v2
// directory can be used as a stronger backstop that also catches descendants
// which called setsid.
//
// On Windows the container is a Job Object configured with
// JOB_OBJECT_LIMIT_KILL_ON_JOB_CLOSE. The supervisor assigns itself to the job
// when the container is created, so the job (and every member) dies with the
// supervisor even if it is terminated before any child has been spawned.
package procgroup

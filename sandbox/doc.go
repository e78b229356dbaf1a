// Package sandbox provides isolated command execution.
//
// Every call to Executor.Execute runs one command in a fresh, uniquely named
// environment with the challenge workdir mounted read-write at /workspace,
// under a wall-clock timeout and a memory ceiling. The environment is torn
// down before Execute returns, whether the command succeeded, exited
// non-zero, timed out or the engine failed.
//
// Backends:
//
//   - docker and podman drive the engine CLI through a CommandRunner
//   - docker-api talks to the Docker Engine API directly
//   - local runs host processes (development only, no isolation)
//
// Wall time and peak memory come from GNU time wrapped around the command
// inside the container image.
//
// Usage:
//
//	executor, err := sandbox.NewExecutor(logger, cfg)
//	result, err := executor.Execute(ctx, sandbox.ExecuteRequest{
//	    Image:   "challengebox/python:3.12",
//	    Workdir: "/problems/leetcode/two-sum/python",
//	    Command: []string{"python3", "solution.py"},
//	    Limits:  sandbox.Limits{Timeout: 10 * time.Second, MemoryMB: 512},
//	})
package sandbox

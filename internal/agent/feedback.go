package agent

import (
	"fmt"
	"time"

	"github.com/octoreflex/ranswarm/internal/qlearning/replay"
	"github.com/octoreflex/ranswarm/internal/qlearning/trajectory"
)

// Feedback completes a trajectory with a terminal reward (spec §4.7:
// "feedback(trajectory_id, reward, success): complete the trajectory
// with outcome Success or Failure, compute the Q-update with
// next_max_q = 0 (terminal), push into the replay buffer with initial
// priority = max"). The Q-update and replay push use the trajectory's
// last recorded (state, action) pair, i.e. the one pipeline() selected
// when this trajectory's final query was answered.
func (a *Agent) Feedback(trajID trajectory.ID, reward float32, success bool) error {
	tr, ok := a.deps.Trajectories.Get(trajID)
	if !ok {
		return fmt.Errorf("agent: unknown trajectory id %d", trajID)
	}
	if len(tr.Experiences) == 0 {
		return fmt.Errorf("agent: trajectory %d has no recorded experience", trajID)
	}

	last := tr.Experiences[len(tr.Experiences)-1]
	newQ := a.deps.QTable.Update(last.State, last.Action, reward, 0)

	outcome := trajectory.Failure
	if success {
		outcome = trajectory.Success
	}
	a.deps.Trajectories.Complete(trajID, outcome, time.Now())

	a.deps.Replay.Add(replay.Experience{
		State:        last.State,
		Action:       last.Action,
		Reward:       reward,
		NextState:    last.State,
		Done:         true,
		TDError:      newQ - last.QValueBefore,
		QValueBefore: last.QValueBefore,
		QValueAfter:  newQ,
	})

	if a.deps.Metrics != nil {
		a.deps.Metrics.QTableUpdatesTotal.Inc()
	}
	return nil
}

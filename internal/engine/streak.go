package engine

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/supafund/supafund-engine/internal/domain"
)

// TransformCheckpoints resolves raw epoch-close records into checkpoints for
// one staking identity. Checkpoints are grouped per staking contract; a
// contract whose history never mentions the identity is dropped, unless the
// contract is in selfContracts, in which case checkpoints with an empty
// participant list are attributed to the identity (the contract skips
// enumerating participants when the identity is the only staker).
//
// Epoch start times come from the next-older checkpoint of the same contract.
// Epoch 0 has no predecessor, so its start is backdated by one epoch length.
// The result is sorted by epoch end time descending across all contracts.
func TransformCheckpoints(serviceID int64, raws []domain.RawCheckpoint, selfContracts map[string]bool) []domain.Checkpoint {
	if len(raws) == 0 || serviceID == 0 {
		return nil
	}

	serviceIDStr := strconv.FormatInt(serviceID, 10)

	byContract := make(map[string][]domain.RawCheckpoint)
	for _, raw := range raws {
		addr := strings.ToLower(raw.ContractAddress)
		byContract[addr] = append(byContract[addr], raw)
	}

	var out []domain.Checkpoint
	for addr, group := range byContract {
		treatMissingAsSelf := selfContracts[addr]

		participated := treatMissingAsSelf
		if !participated {
			for _, raw := range group {
				if containsServiceID(raw.ServiceIDs, serviceIDStr) {
					participated = true
					break
				}
			}
		}
		if !participated {
			continue
		}

		// Newest first within the contract so index+1 is the next-older epoch.
		sort.SliceStable(group, func(i, j int) bool {
			return epochNumber(group[i].Epoch) > epochNumber(group[j].Epoch)
		})

		for i, raw := range group {
			out = append(out, transformOne(serviceIDStr, raw, olderTimestamp(group, i), treatMissingAsSelf))
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].EpochEndTime > out[j].EpochEndTime
	})
	return out
}

func transformOne(serviceIDStr string, raw domain.RawCheckpoint, olderEnd int64, treatMissingAsSelf bool) domain.Checkpoint {
	endTime := domain.ParseTimestamp(raw.BlockTimestamp)
	epochLength := domain.ParseTimestamp(raw.EpochLength)

	rewardSource := "0"
	earned := false
	serviceIDs := raw.ServiceIDs

	if idx := indexOfServiceID(raw.ServiceIDs, serviceIDStr); idx >= 0 {
		if idx < len(raw.Rewards) {
			rewardSource = raw.Rewards[idx]
		}
		earned = true
	} else if treatMissingAsSelf && len(raw.ServiceIDs) == 0 {
		rewardSource = raw.AvailableRewards
		if rewardSource == "" && len(raw.Rewards) > 0 {
			rewardSource = raw.Rewards[0]
		}
		reward := domain.FromWei(rewardSource)
		earned = reward > 0
		serviceIDs = []string{serviceIDStr}
	}

	startTime := olderEnd
	if raw.Epoch == "0" {
		startTime = endTime - epochLength
	}

	return domain.Checkpoint{
		Epoch:           epochNumber(raw.Epoch),
		ContractAddress: strings.ToLower(raw.ContractAddress),
		EpochStartTime:  startTime,
		EpochEndTime:    endTime,
		EpochLength:     epochLength,
		Reward:          domain.FromWei(rewardSource),
		Earned:          earned,
		ServiceIDs:      serviceIDs,
		TxHash:          raw.TransactionHash,
	}
}

// LatestStreak walks earned checkpoints newest-to-oldest and counts the run
// of consecutive epochs, tolerating gaps up to one epoch length. It stops at
// the first break; disjoint earlier runs never count.
func LatestStreak(checkpoints []domain.Checkpoint, now time.Time) int {
	earned := make([]domain.Checkpoint, 0, len(checkpoints))
	for _, cp := range checkpoints {
		if cp.Earned {
			earned = append(earned, cp)
		}
	}
	if len(earned) == 0 {
		return 0
	}
	sort.SliceStable(earned, func(i, j int) bool {
		return earned[i].EpochEndTime > earned[j].EpochEndTime
	})

	// The most recent epoch must still be fresh or the streak is already over.
	if now.Unix()-earned[0].EpochEndTime > earned[0].EpochLength {
		return 0
	}

	streak := 1
	for i := 1; i < len(earned); i++ {
		previous := earned[i-1]
		current := earned[i]
		gap := previous.EpochStartTime - current.EpochEndTime
		if gap > current.EpochLength {
			break
		}
		streak++
	}
	return streak
}

// olderTimestamp returns the block timestamp of the next-older checkpoint in
// a newest-first group, or 0 when the checkpoint is the oldest known.
func olderTimestamp(group []domain.RawCheckpoint, i int) int64 {
	if i+1 < len(group) {
		return domain.ParseTimestamp(group[i+1].BlockTimestamp)
	}
	return 0
}

func epochNumber(epoch string) int64 {
	n, err := strconv.ParseInt(epoch, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func indexOfServiceID(ids []string, target string) int {
	for i, id := range ids {
		if id == target {
			return i
		}
	}
	return -1
}

func containsServiceID(ids []string, target string) bool {
	return indexOfServiceID(ids, target) >= 0
}

package repositories

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// unlockScheduleKey is a sorted set of capsule IDs scored by unlock time in
// Unix milliseconds.
const unlockScheduleKey = "capsule:unlocks"

type RedisNotificationSchedule struct {
	client *redis.Client
}

func NewRedisNotificationSchedule(client *redis.Client) *RedisNotificationSchedule {
	return &RedisNotificationSchedule{client: client}
}

// Schedule registers an unlock notification. Scheduling the same capsule again
// moves it to the new time.
func (r *RedisNotificationSchedule) Schedule(ctx context.Context, capsuleID uuid.UUID, unlockAt time.Time) error {
	err := r.client.ZAdd(ctx, unlockScheduleKey, redis.Z{
		Score:  float64(unlockAt.UnixMilli()),
		Member: capsuleID.String(),
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to schedule unlock notification: %w", err)
	}
	return nil
}

// PopDue claims up to limit notifications due at now. An entry is returned only
// to the caller whose ZREM removed it, so concurrent workers never share one.
func (r *RedisNotificationSchedule) PopDue(ctx context.Context, now time.Time, limit int64) ([]uuid.UUID, error) {
	members, err := r.client.ZRangeByScore(ctx, unlockScheduleKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: limit,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read due notifications: %w", err)
	}

	var due []uuid.UUID
	for _, member := range members {
		removed, err := r.client.ZRem(ctx, unlockScheduleKey, member).Result()
		if err != nil {
			return due, fmt.Errorf("failed to claim notification %s: %w", member, err)
		}
		if removed == 0 {
			continue
		}

		id, err := uuid.Parse(member)
		if err != nil {
			// Unparseable members can never be delivered; dropping them is enough.
			continue
		}
		due = append(due, id)
	}

	return due, nil
}

func (r *RedisNotificationSchedule) Pending(ctx context.Context) (int64, error) {
	n, err := r.client.ZCard(ctx, unlockScheduleKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count pending notifications: %w", err)
	}
	return n, nil
}

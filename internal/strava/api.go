package strava

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"stridelog-strava-sync/internal/metrics"
)

const listPageSize = 200 // Strava max

// FetchAthleteProfile fetches the authenticated athlete's profile
func (c *Client) FetchAthleteProfile(ctx context.Context, userID string, athleteID int64) (*AthleteProfile, error) {
	body, err := c.doRequest(ctx, userID, "/athlete", metrics.OpFetchProfile)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch athlete profile: %w", err)
	}

	profile, err := parseAthleteProfile(body)
	if err != nil {
		return nil, err
	}
	if athleteID != 0 && profile.ID != athleteID {
		return nil, invalidPayload("athlete profile",
			fmt.Sprintf("expected athlete %d, got %d", athleteID, profile.ID))
	}
	return profile, nil
}

// FetchActivityEvents lists activities in the half-open window
// [after, before). Pagination is followed until a short page.
func (c *Client) FetchActivityEvents(ctx context.Context, userID string, after, before time.Time) ([]ActivityEvent, error) {
	var all []ActivityEvent

	for page := 1; ; page++ {
		params := url.Values{
			"after":    {strconv.FormatInt(after.Unix(), 10)},
			"before":   {strconv.FormatInt(before.Unix(), 10)},
			"page":     {strconv.Itoa(page)},
			"per_page": {strconv.Itoa(listPageSize)},
		}

		body, err := c.doRequest(ctx, userID, "/athlete/activities?"+params.Encode(), metrics.OpListActivities)
		if err != nil {
			return nil, fmt.Errorf("failed to list activities (page %d): %w", page, err)
		}

		events, err := parseActivityEvents(body)
		if err != nil {
			return nil, err
		}
		all = append(all, events...)

		if len(events) < listPageSize {
			return all, nil
		}
	}
}

// FetchActivityDetail fetches full data for one activity
func (c *Client) FetchActivityDetail(ctx context.Context, userID string, activityID int64) (*ActivityDetail, error) {
	path := fmt.Sprintf("/activities/%d", activityID)

	body, err := c.doRequest(ctx, userID, path, metrics.OpFetchDetail)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch activity %d: %w", activityID, err)
	}
	return parseActivityDetail(body)
}

// FetchActivityMap fetches the polyline map for one activity
func (c *Client) FetchActivityMap(ctx context.Context, userID string, activityID int64) (*ActivityMap, error) {
	path := fmt.Sprintf("/activities/%d?include_all_efforts=false", activityID)

	body, err := c.doRequest(ctx, userID, path, metrics.OpFetchMap)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch map for activity %d: %w", activityID, err)
	}
	return parseActivityMap(body)
}

// FetchActivityStreams fetches the requested sensor streams keyed by type.
// Callers must only request streams the provider advertises.
func (c *Client) FetchActivityStreams(ctx context.Context, userID string, activityID int64, types []string) (StreamSet, error) {
	if len(types) == 0 {
		return StreamSet{}, nil
	}

	params := url.Values{
		"key_by_type": {"true"},
		"keys":        {strings.Join(types, ",")},
	}

	path := fmt.Sprintf("/activities/%d/streams?%s", activityID, params.Encode())

	body, err := c.doRequest(ctx, userID, path, metrics.OpFetchStreams)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch streams for activity %d: %w", activityID, err)
	}
	return parseStreamSet(body)
}

package model

// Package model defines domain data structures shared across the service:
// download jobs and their status enum, media metadata, playlist listings,
// clipboard contents, and the sentinel errors used to classify failures at the
// HTTP boundary.

package api

// DefaultTier is the tier which nodes belong to when they don't announce one.
const DefaultTier = "_default_tier"

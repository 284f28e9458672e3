package worker

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ppiankov/claimcheck/internal/model"
)

// Verifier verifies one claim. It never fails; problems surface as an
// inconclusive verdict.
type Verifier interface {
	VerifyClaim(ctx context.Context, claim string) *model.Verdict
}

// VerifyJob represents one claim verification
type VerifyJob struct {
	Index    int
	Claim    string
	Verifier Verifier
}

// Execute executes the verification job
func (j *VerifyJob) Execute(ctx context.Context) Result {
	verdict := j.Verifier.VerifyClaim(ctx, j.Claim)
	if verdict == nil {
		return &VerifyResult{Index: j.Index, Claim: j.Claim, Error: fmt.Errorf("no verdict produced")}
	}
	return &VerifyResult{Index: j.Index, Claim: j.Claim, Verdict: verdict}
}

// VerifyResult represents the result of a verification job
type VerifyResult struct {
	Index   int
	Claim   string
	Verdict *model.Verdict
	Error   error
}

// GetError returns the error from the verification result
func (r *VerifyResult) GetError() error {
	return r.Error
}

// BatchProcessor verifies many claims concurrently
type BatchProcessor struct {
	verifier    Verifier
	concurrency int
}

// NewBatchProcessor creates a new batch processor
func NewBatchProcessor(verifier Verifier, concurrency int) *BatchProcessor {
	return &BatchProcessor{
		verifier:    verifier,
		concurrency: concurrency,
	}
}

// ProcessClaims verifies claims concurrently and returns results in input order
func (b *BatchProcessor) ProcessClaims(ctx context.Context, claims []string) []*VerifyResult {
	if len(claims) == 0 {
		return []*VerifyResult{}
	}

	pool := NewPool(ctx, b.concurrency)
	for i, claim := range claims {
		pool.Submit(&VerifyJob{
			Index:    i,
			Claim:    claim,
			Verifier: b.verifier,
		})
	}
	results := pool.Wait()

	out := make([]*VerifyResult, len(claims))
	for i, claim := range claims {
		if i < len(results) && results[i] != nil {
			out[i] = results[i].(*VerifyResult)
			continue
		}
		err := ctx.Err()
		if err == nil {
			err = fmt.Errorf("not verified")
		}
		out[i] = &VerifyResult{Index: i, Claim: claim, Error: fmt.Errorf("skipped: %w", err)}
	}

	return out
}

// ReadClaimsFromFile reads claims from a file (one per line)
func ReadClaimsFromFile(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	return ReadClaims(file)
}

// ReadClaims reads one claim per line, skipping blanks, comments and duplicates
func ReadClaims(r io.Reader) ([]string, error) {
	var claims []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if !seen[line] {
			seen[line] = true
			claims = append(claims, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return claims, nil
}

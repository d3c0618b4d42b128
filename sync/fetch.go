package sync

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	gosync "sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/AudiusProject/creator-node/core/common"
	"github.com/AudiusProject/creator-node/core/logging"
	"github.com/AudiusProject/creator-node/dbs/userstate"
	"github.com/AudiusProject/creator-node/diskstore"
)

// FetchExportOptions parameterize one export request against a remote node.
type FetchExportOptions struct {
	Wallets       []string
	ClockRangeMin int
	ForceExport   bool
	// SelfEndpoint is forwarded so the remote can log who is pulling.
	SelfEndpoint string
}

// FetchExport pulls an export payload from the remote node and validates it:
// every returned user must carry its own wallet, and every returned wallet
// must be one we asked for - extraneous wallets are a protocol violation.
func FetchExport(client *http.Client, remoteEndpoint string, opts FetchExportOptions) (*ExportPayload, error) {
	query := url.Values{}
	query.Set("wallet_public_key", strings.Join(opts.Wallets, ","))
	query.Set("clock_range_min", strconv.Itoa(opts.ClockRangeMin))
	if opts.ForceExport {
		query.Set("force_export", "true")
	}
	if opts.SelfEndpoint != "" {
		query.Set("source_endpoint", opts.SelfEndpoint)
	}
	exportURL := strings.TrimRight(remoteEndpoint, "/") + "/export?" + query.Encode()

	resp, err := client.Get(exportURL)
	if err != nil {
		return nil, common.NewErrorf(common.ErrRemoteUnavailableCode,
			"error fetching /export from %v: %v", remoteEndpoint, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, common.NewErrorf(common.ErrRemoteUnavailableCode,
			"%v returned status %v for /export", remoteEndpoint, resp.StatusCode)
	}

	var payload ExportPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, common.NewErrorf(common.ErrMalformedExportCode,
			"malformed response from %v: %v", remoteEndpoint, err)
	}
	if payload.CNodeUsers == nil {
		return nil, common.NewErrorf(common.ErrMalformedExportCode,
			"malformed response from %v: cnodeUsers property not found", remoteEndpoint)
	}

	requested := make(map[string]bool, len(opts.Wallets))
	for _, wallet := range opts.Wallets {
		requested[wallet] = true
	}
	for userID, fetched := range payload.CNodeUsers {
		if fetched == nil || fetched.WalletPublicKey == "" {
			return nil, common.NewErrorf(common.ErrMalformedExportCode,
				"malformed response from %v: walletPublicKey not found on cnodeUser %v", remoteEndpoint, userID)
		}
		if !requested[fetched.WalletPublicKey] {
			return nil, common.NewErrorf(common.ErrMalformedExportCode,
				"%v returned data for walletPublicKey that was not requested", remoteEndpoint)
		}
		if fetched.ClockInfo == nil {
			return nil, common.NewErrorf(common.ErrMalformedExportCode,
				"malformed response from %v: clockInfo not found on cnodeUser %v", remoteEndpoint, userID)
		}
		if fetched.ClockInfo.RequestedClockRangeMax < fetched.ClockInfo.RequestedClockRangeMin {
			return nil, common.NewErrorf(common.ErrMalformedExportCode,
				"malformed response from %v: inverted clockInfo", remoteEndpoint)
		}
	}
	return &payload, nil
}

// ContentFetcher materializes missing file bytes into the disk store. Distinct
// files are fetched concurrently up to the worker bound; per file, sources are
// tried strictly one at a time to avoid hammering peer nodes.
type ContentFetcher struct {
	disk    *diskstore.Store
	client  *http.Client
	workers int
	// LocalGateway, when set, is consulted before any replica endpoint.
	LocalGateway string
}

func NewContentFetcher(disk *diskstore.Store, client *http.Client, workers int) *ContentFetcher {
	if workers <= 0 {
		workers = 1
	}
	return &ContentFetcher{disk: disk, client: client, workers: workers}
}

func contentRefForFile(f *userstate.File) (diskstore.ContentRef, bool) {
	if f.Type == userstate.FileTypeDir {
		// Directory rows have no bytes of their own.
		return diskstore.ContentRef{}, false
	}
	if f.DirMultihash != nil && f.FileName != nil {
		return diskstore.NewDirEntryRef(*f.DirMultihash, *f.FileName), true
	}
	return diskstore.NewFileRef(f.Multihash), true
}

// FetchMissing fetches every file row whose content is not already on disk.
// Every file is attempted regardless of other files' failures; the first
// error is returned after all attempts so the overall sync outcome reflects
// the failure.
func (cf *ContentFetcher) FetchMissing(files []userstate.File, sources []string) error {
	jobs := make(chan *userstate.File)
	var (
		wg       gosync.WaitGroup
		mu       gosync.Mutex
		firstErr error
	)

	for i := 0; i < cf.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for f := range jobs {
				if err := cf.fetchOne(f, sources); err != nil {
					logging.Logger.Error("content fetch failed",
						zap.String("multihash", f.Multihash),
						zap.Error(err),
					)
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
				}
			}
		}()
	}
	for i := range files {
		jobs <- &files[i]
	}
	close(jobs)
	wg.Wait()
	return firstErr
}

func (cf *ContentFetcher) fetchOne(f *userstate.File, sources []string) error {
	ref, hasBytes := contentRefForFile(f)
	if !hasBytes {
		return nil
	}
	if cf.disk.Has(ref) {
		return nil
	}
	path, err := ref.Path(cf.disk, true)
	if err != nil {
		return err
	}

	ordered := sources
	if cf.LocalGateway != "" {
		ordered = append([]string{cf.LocalGateway}, sources...)
	}

	var lastErr error
	for _, source := range ordered {
		data, err := cf.get(source, ref)
		if err != nil {
			// Per-source failure is non-fatal, try the next listed endpoint.
			logging.Logger.Debug("content source miss",
				zap.String("source", source),
				zap.String("multihash", f.Multihash),
				zap.Error(err),
			)
			lastErr = err
			continue
		}
		if computed := diskstore.ComputeCID(data); computed != f.Multihash {
			return common.NewErrorf(common.ErrContentIntegrityMismatchCode,
				"fetched bytes for %v hash to %v", f.Multihash, computed)
		}
		if err := cf.disk.PutAt(path, data); err != nil {
			return err
		}
		return nil
	}
	if lastErr == nil {
		lastErr = errors.New("no content sources configured")
	}
	return errors.Wrapf(lastErr, "could not retrieve %v from any source", f.Multihash)
}

func (cf *ContentFetcher) get(source string, ref diskstore.ContentRef) ([]byte, error) {
	resp, err := cf.client.Get(strings.TrimRight(source, "/") + ref.RemotePath())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %v", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

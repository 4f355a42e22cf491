package main

import (
	"net/http"

	jsoniter "github.com/json-iterator/go"
	"github.com/urfave/cli/v2"
	"k8s.io/klog/v2"

	"github.com/rpcpool/picblocks-go/internal/matcher"
	"github.com/rpcpool/picblocks-go/internal/perrors"
	"github.com/rpcpool/picblocks-go/internal/report"
)

// newCmd_Serve exposes matcher.Match as a single unauthenticated HTTP
// endpoint. This is a thin illustrative shell, not a production front-end:
// no auth, no MongoDB export, no HTML rendering.
func newCmd_Serve() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve POST /match over HTTP.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "db", Value: defaultDBPath, Usage: "database path"},
			&cli.StringFlag{Name: "addr", Value: ":8080", Usage: "listen address"},
		},
		Action: func(c *cli.Context) error {
			idx, err := loadIndexAnyFormat(c.String("db"))
			if err != nil {
				return err
			}
			m := matcher.New(idx)

			mux := http.NewServeMux()
			mux.HandleFunc("/match", matchHandler(m))

			klog.Infof("serve: listening on %s", c.String("addr"))
			srv := &http.Server{Addr: c.String("addr"), Handler: mux}
			go func() {
				<-c.Context.Done()
				_ = srv.Close()
			}()
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return perrors.Wrap(perrors.KindIO, err, "serve http")
			}
			return nil
		},
	}
}

func matchHandler(m *matcher.Matcher) http.HandlerFunc {
	json := jsoniter.ConfigCompatibleWithStandardLibrary
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST only", http.StatusMethodNotAllowed)
			return
		}
		defer r.Body.Close()

		var rep report.BlockhashReport
		if err := json.NewDecoder(r.Body).Decode(&rep); err != nil {
			http.Error(w, "bad blockhash report: "+err.Error(), http.StatusBadRequest)
			return
		}

		out, _, err := m.MatchContext(r.Context(), &rep)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	}
}

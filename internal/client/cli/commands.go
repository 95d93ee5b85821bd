package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/kollectcare/trialsync/internal/client/models"
	"github.com/kollectcare/trialsync/internal/client/service"
)

// save runs one form save: a new patient when patientID is empty, otherwise
// the chosen field group of an existing record.
func (a *App) save(ctx context.Context, patientID string, dataType models.DataType) {
	payload, err := a.promptDocument()
	if err != nil || len(payload) == 0 {
		return
	}

	isDraft, err := a.promptYesNo("Save as draft?")
	if err != nil {
		return
	}

	formID := ""
	if isDraft {
		if formID, err = a.promptString("Form id"); err != nil {
			return
		}
	}

	result, err := a.service.Save(ctx, service.SaveRequest{
		FormID:    formID,
		PatientID: patientID,
		OwnerID:   a.userName,
		DataType:  dataType,
		Payload:   payload,
		IsDraft:   isDraft,
	})
	if err != nil {
		log.Printf("save failed: %v", err)
		return
	}

	if result.IsDraft {
		fmt.Println("Draft saved.")
		return
	}
	fmt.Printf("Saved locally as %s; sync will follow.\n", result.PatientID)

	if err := a.controller.Watch(ctx, result.PatientID); err != nil {
		log.Printf("watch failed: %v", err)
	}
}

func (a *App) list(ctx context.Context) {
	recs, err := a.service.ListRecords(ctx, a.userName)
	if err != nil {
		log.Printf("list failed: %v", err)
		return
	}
	if len(recs) == 0 {
		fmt.Println("No records.")
		return
	}
	for _, rec := range recs {
		dirty := ""
		if rec.Metadata.IsDirty {
			dirty = " *unsynced"
		}
		fmt.Printf("%s  v%d  followups:%d%s\n", rec.PatientID, rec.Metadata.Version, len(rec.Followups), dirty)
	}
}

func (a *App) show(ctx context.Context, patientID string) {
	rec, err := a.service.GetRecord(ctx, patientID)
	if err != nil {
		log.Printf("show failed: %v", err)
		return
	}
	out, err := json.MarshalIndent(rec.RemoteDocument(), "", "  ")
	if err != nil {
		log.Printf("show failed: %v", err)
		return
	}
	fmt.Println(string(out))
}

func (a *App) drafts(ctx context.Context, patientID string) {
	list, err := a.service.ListDrafts(ctx, patientID)
	if err != nil {
		log.Printf("drafts failed: %v", err)
		return
	}
	if len(list) == 0 {
		fmt.Println("No drafts.")
		return
	}
	for _, d := range list {
		fmt.Printf("%s  %s  saved %s  errors:%d\n", d.FormID, d.DataType, d.SavedAt.Format("2006-01-02 15:04:05"), len(d.ValidationErrors))
	}
}

func (a *App) sync(ctx context.Context) {
	if err := a.service.TriggerSync(ctx); err != nil {
		log.Printf("sync failed: %v", err)
		return
	}
	a.status(ctx)
}

func (a *App) status(ctx context.Context) {
	st := a.service.SyncStatus(ctx)
	fmt.Printf("online: %v  syncing: %v  pending: %d  failed: %d\n", st.Online, st.Syncing, st.PendingCount, st.FailedCount)
	if st.LastSyncTime != nil {
		fmt.Printf("last sync: %s\n", st.LastSyncTime.Format("2006-01-02 15:04:05"))
	}
	for _, e := range st.RecentErrors {
		fmt.Printf("  error: %s\n", e)
	}
}

func (a *App) clear(ctx context.Context) {
	sure, err := a.promptYesNo("Delete ALL local data?")
	if err != nil || !sure {
		return
	}
	if err := a.service.ClearAllData(ctx); err != nil {
		log.Printf("clear failed: %v", err)
		return
	}
	fmt.Println("Local data cleared.")
}

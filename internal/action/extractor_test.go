package action

import (
	"reflect"
	"testing"
)

func TestExtract_Schedule(t *testing.T) {
	got := Extract("Let's schedule an interview for Tuesday")

	want := []Action{{Type: TypeSchedule, Description: "Schedule an interview or meeting"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Extract() = %+v, want %+v", got, want)
	}
}

func TestExtract_PostJobRequiresBothWords(t *testing.T) {
	if got := Extract("we should post something"); len(got) != 0 {
		t.Errorf("Extract(\"post\" without \"job\") = %+v, want none", got)
	}
	if got := Extract("the job is open"); len(got) != 0 {
		t.Errorf("Extract(\"job\" without \"post\") = %+v, want none", got)
	}

	got := Extract("Time to post the job listing")
	want := []Action{{Type: TypePostJob, Description: "Post a job listing"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Extract() = %+v, want %+v", got, want)
	}
}

func TestExtract_Offer(t *testing.T) {
	got := Extract("Prepare an offer for the candidate")

	want := []Action{{Type: TypePrepareOffer, Description: "Prepare an offer letter"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Extract() = %+v, want %+v", got, want)
	}
}

// Rules are independent: one message can carry several actions.
func TestExtract_MultipleActions(t *testing.T) {
	got := Extract("Let's schedule an interview and post the job")

	want := []Action{
		{Type: TypeSchedule, Description: "Schedule an interview or meeting"},
		{Type: TypePostJob, Description: "Post a job listing"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Extract() = %+v, want %+v", got, want)
	}
}

func TestExtract_CaseInsensitive(t *testing.T) {
	got := Extract("SCHEDULE the meeting and PREPARE AN OFFER")

	want := []Action{
		{Type: TypeSchedule, Description: "Schedule an interview or meeting"},
		{Type: TypePrepareOffer, Description: "Prepare an offer letter"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Extract() = %+v, want %+v", got, want)
	}
}

func TestExtract_NoMatch(t *testing.T) {
	got := Extract("Thanks, sounds good!")
	if got == nil {
		t.Fatal("Extract() returned nil, want empty slice")
	}
	if len(got) != 0 {
		t.Errorf("Extract() = %+v, want none", got)
	}
}

// Substring matching fires inside larger words. This is a documented
// property of the rules, not an accident.
func TestExtract_SubstringMatch(t *testing.T) {
	got := Extract("we rescheduled the sync")

	want := []Action{{Type: TypeSchedule, Description: "Schedule an interview or meeting"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Extract() = %+v, want %+v", got, want)
	}
}

func TestExtract_Deterministic(t *testing.T) {
	text := "schedule, post the job, send the offer"
	first := Extract(text)
	second := Extract(text)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Extract not deterministic: %+v vs %+v", first, second)
	}
	if len(first) != 3 {
		t.Errorf("Extract() yielded %d actions, want 3", len(first))
	}
}

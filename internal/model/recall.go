package model

import "time"

// RecallStatus tracks whether the owner has had a recall remedied.  The
// only permitted transition is INCOMPLETE → COMPLETE.
type RecallStatus string

const (
    RecallIncomplete RecallStatus = "INCOMPLETE"
    RecallComplete   RecallStatus = "COMPLETE"
)

// RecallRecord is a row of the `recalls` table.  CampaignNumber is unique
// per vehicle.
//
// Fields:
//  ID             – primary key (UUID string).
//  VehicleID      – owning vehicle.
//  CampaignNumber – NHTSA campaign number, e.g. 23V100000.
//  Manufacturer   – reporting manufacturer.
//  ReceivedDate   – report received date as published (dd/MM/yyyy).
//  Component      – affected component.
//  Summary        – regulator summary.
//  Consequence    – safety consequence.
//  Remedy         – remedy description.
//  Notes          – additional notes.
//  Status         – INCOMPLETE or COMPLETE.
//  ShortSummary   – generated one-line title; empty until enriched.
//  CreatedAt      – when the campaign was first seen for this vehicle.
type RecallRecord struct {
    ID             string       `json:"-"`
    VehicleID      string       `json:"-"`
    CampaignNumber string       `json:"nhtsa_campaign_number"`
    Manufacturer   string       `json:"manufacturer"`
    ReceivedDate   string       `json:"report_received_date"`
    Component      string       `json:"component"`
    Summary        string       `json:"summary"`
    Consequence    string       `json:"consequence"`
    Remedy         string       `json:"remedy"`
    Notes          string       `json:"notes"`
    Status         RecallStatus `json:"status"`
    ShortSummary   string       `json:"short_summary"`
    CreatedAt      time.Time    `json:"-"`
}

// ExternalRecallSet is the payload returned by the public recall lookup.
type ExternalRecallSet struct {
    Count   int              `json:"Count"`
    Message string           `json:"Message"`
    Results []ExternalRecall `json:"results"`
}

// ExternalRecall is one entry of ExternalRecallSet.Results.
type ExternalRecall struct {
    Manufacturer       string `json:"Manufacturer"`
    CampaignNumber     string `json:"NHTSACampaignNumber"`
    ParkIt             bool   `json:"parkIt"`
    ParkOutSide        bool   `json:"parkOutSide"`
    ReportReceivedDate string `json:"ReportReceivedDate"`
    Component          string `json:"Component"`
    Summary            string `json:"Summary"`
    Consequence        string `json:"Consequence"`
    Remedy             string `json:"Remedy"`
    Notes              string `json:"Notes"`
    ModelYear          string `json:"ModelYear"`
    Make               string `json:"Make"`
    Model              string `json:"Model"`
}

// Record converts an external entry into a new INCOMPLETE RecallRecord.
func (e ExternalRecall) Record(vehicleID, shortSummary string) RecallRecord {
    return RecallRecord{
        VehicleID:      vehicleID,
        CampaignNumber: e.CampaignNumber,
        Manufacturer:   e.Manufacturer,
        ReceivedDate:   e.ReportReceivedDate,
        Component:      e.Component,
        Summary:        e.Summary,
        Consequence:    e.Consequence,
        Remedy:         e.Remedy,
        Notes:          e.Notes,
        Status:         RecallIncomplete,
        ShortSummary:   shortSummary,
    }
}
